package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbridge/pkg/types"
)

const (
	testUSDCMint = "EPjFWJd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testWSOLMint = "So11111111111111111111111111111111111111112"
)

// unsignedTransfer builds a serialized, unsigned system transfer the way a
// swap API returns one.
func unsignedTransfer(t *testing.T) string {
	t.Helper()

	payer := solana.MustPublicKeyFromBase58(testSolana)
	instruction := system.NewTransferInstruction(1000, payer, solana.SystemProgramID).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func jupiterServer(t *testing.T, swapTx string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/quote":
			assert.Equal(t, "50", r.URL.Query().Get("slippageBps"))
			json.NewEncoder(w).Encode(map[string]any{
				"inputMint":  r.URL.Query().Get("inputMint"),
				"outputMint": r.URL.Query().Get("outputMint"),
				"inAmount":   r.URL.Query().Get("amount"),
				"outAmount":  "2000000",
				"routePlan":  []any{},
			})
		case "/swap":
			var body map[string]json.RawMessage
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, string(body["quoteResponse"]), "routePlan", "quote is passed back verbatim")
			json.NewEncoder(w).Encode(map[string]any{"swapTransaction": swapTx})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestJupiter_Rate(t *testing.T) {
	server := jupiterServer(t, "")
	defer server.Close()

	j := NewJupiter(server.URL, server.Client())
	num, den, err := j.Rate(context.Background(), testUSDCMint, testWSOLMint, "1000000", 50)
	require.NoError(t, err)
	assert.Equal(t, "2000000", num.String())
	assert.Equal(t, "1000000", den.String())
}

func TestJupiter_BuildStep(t *testing.T) {
	serialized := unsignedTransfer(t)
	server := jupiterServer(t, serialized)
	defer server.Close()

	j := NewJupiter(server.URL, server.Client())
	route := types.NormalizedRoute{
		Provider: NameLiFi,
		RouteID:  "r1",
		Steps: []types.RouteStep{
			{ChainKind: types.ChainEVM, ChainID: "1", Description: "bridge"},
			{
				ChainKind:   types.ChainSolana,
				Provider:    NameJupiter,
				Description: "swap",
				TokenIn:     &types.TokenAmount{Token: testUSDCMint, Amount: "1000000"},
				TokenOut:    testWSOLMint,
			},
		},
	}

	tx, err := j.BuildStep(context.Background(), StepInput{Route: route, StepIndex: 1, Intent: testIntent(types.NativeToken)})
	require.NoError(t, err)
	assert.Equal(t, types.SolanaTxRequest{SerializedTx: serialized}, tx)
}

func TestJupiter_BuildStep_MalformedTransaction(t *testing.T) {
	server := jupiterServer(t, base64.StdEncoding.EncodeToString([]byte("not a transaction")))
	defer server.Close()

	j := NewJupiter(server.URL, server.Client())
	route := types.NormalizedRoute{
		Steps: []types.RouteStep{{
			ChainKind: types.ChainSolana,
			TokenIn:   &types.TokenAmount{Token: testUSDCMint, Amount: "1000000"},
			TokenOut:  testWSOLMint,
		}},
	}

	_, err := j.BuildStep(context.Background(), StepInput{Route: route, Intent: testIntent(types.NativeToken)})
	assert.Error(t, err)
}

func TestJupiter_BuildStep_RejectsEVMStep(t *testing.T) {
	j := NewJupiter("http://127.0.0.1:0", nil)
	route := types.NormalizedRoute{Steps: []types.RouteStep{{ChainKind: types.ChainEVM}}}

	_, err := j.BuildStep(context.Background(), StepInput{Route: route})
	assert.ErrorIs(t, err, ErrStepNotSupported)
}
