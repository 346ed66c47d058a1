package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbridge/pkg/types"
)

const (
	testUSDC   = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	testWallet = "0x1111111111111111111111111111111111111111"
	testSolana = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testSpend  = "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"
)

func testIntent(token string) types.TransferIntent {
	return types.TransferIntent{
		SourceChainID:    "1",
		SourceChainKind:  types.ChainEVM,
		SourceToken:      token,
		SourceAmount:     "1000000",
		DestinationToken: "So11111111111111111111111111111111111111112",
		SourceAddress:    testWallet,
		SolanaAddress:    testSolana,
		SlippagePercent:  "0.5",
	}
}

func lifiQuoteFixture() map[string]any {
	return map[string]any{
		"id":          "lifi-route-1",
		"tool":        "mayan",
		"toolDetails": map[string]any{"name": "Mayan"},
		"estimate": map[string]any{
			"toAmount":          "4990000",
			"approvalAddress":   testSpend,
			"executionDuration": 61.5,
			"feeCosts": []map[string]any{
				{"name": "LIFI Fixed Fee", "amount": "2500", "token": map[string]any{"address": testUSDC}},
			},
		},
		"transactionRequest": map[string]any{
			"to":       testSpend,
			"data":     "0xdeadbeef",
			"value":    "0x0",
			"gasLimit": "0x30d40",
		},
	}
}

func lifiServer(t *testing.T) *httptest.Server {
	return lifiSequenceServer(t, lifiQuoteFixture())
}

// lifiSequenceServer answers the n-th quote with responses[n], repeating
// the last one
func lifiSequenceServer(t *testing.T, responses ...map[string]any) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("fromChain"))
		assert.Equal(t, lifiSolanaChainID, r.URL.Query().Get("toChain"))
		assert.Equal(t, "0.005", r.URL.Query().Get("slippage"))
		assert.Equal(t, "secret", r.Header.Get("x-lifi-api-key"))

		mu.Lock()
		resp := responses[min(calls, len(responses)-1)]
		calls++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestLiFi_GetQuotes(t *testing.T) {
	server := lifiServer(t)
	defer server.Close()

	l := NewLiFi(server.URL, "secret", server.Client())
	routes, err := l.GetQuotes(context.Background(), testIntent(testUSDC))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	route := routes[0]
	assert.Equal(t, NameLiFi, route.Provider)
	assert.Equal(t, "lifi-route-1", route.RouteID)
	assert.Equal(t, "4990000", route.EstimatedOutput.Amount)
	require.NotNil(t, route.EstimatedSeconds)
	assert.Equal(t, int64(62), *route.EstimatedSeconds)
	assert.Equal(t, []types.TokenAmount{{Token: testUSDC, Amount: "2500"}}, route.Fees)

	require.Len(t, route.Steps, 2, "erc20 sources need an approval step")
	assert.Equal(t, testSpend, route.Steps[0].Spender)
	assert.Equal(t, "Bridge to Solana via Mayan", route.Steps[1].Description)
}

func TestLiFi_BuildStep(t *testing.T) {
	server := lifiServer(t)
	defer server.Close()

	l := NewLiFi(server.URL, "secret", server.Client())
	intent := testIntent(testUSDC)
	routes, err := l.GetQuotes(context.Background(), intent)
	require.NoError(t, err)

	approve, err := l.BuildStep(context.Background(), StepInput{Route: routes[0], StepIndex: 0, Intent: intent})
	require.NoError(t, err)
	evm := approve.(types.EVMTxRequest)
	assert.True(t, strings.EqualFold(testUSDC, evm.To))
	assert.Equal(t, "0x095ea7b3", evm.Data[:10], "approve selector")
	assert.Equal(t, "0", evm.Value)

	bridge, err := l.BuildStep(context.Background(), StepInput{Route: routes[0], StepIndex: 1, Intent: intent})
	require.NoError(t, err)
	evm = bridge.(types.EVMTxRequest)
	assert.Equal(t, testSpend, evm.To)
	assert.Equal(t, "0xdeadbeef", evm.Data)
	assert.Equal(t, "0", evm.Value)
	assert.Equal(t, "200000", evm.Gas)
}

func TestLiFi_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"No available quotes for the requested transfer"}`))
	}))
	defer server.Close()

	l := NewLiFi(server.URL, "", server.Client())
	_, err := l.GetQuotes(context.Background(), testIntent(types.NativeToken))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "No available quotes")
}

func TestLiFi_RejectsNonEVMSource(t *testing.T) {
	l := NewLiFi("http://127.0.0.1:0", "", nil)
	intent := testIntent(types.NativeToken)
	intent.SourceChainKind = types.ChainBitcoin

	_, err := l.GetQuotes(context.Background(), intent)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestSlippageConversions(t *testing.T) {
	assert.Equal(t, "0.005", slippageFraction("0.5"))
	assert.Equal(t, "0.01", slippageFraction("1"))
	assert.Equal(t, 50, SlippageBps("0.5"))
	assert.Equal(t, 125, SlippageBps("1.25"))
	assert.Equal(t, 50, SlippageBps("garbage"))
}

func TestLiFi_BuildStep_RequoteDrift(t *testing.T) {
	lowOutput := lifiQuoteFixture()
	lowOutput["estimate"].(map[string]any)["toAmount"] = "4900000"

	withinSlippage := lifiQuoteFixture()
	withinSlippage["estimate"].(map[string]any)["toAmount"] = "4970000"

	newTarget := lifiQuoteFixture()
	newTarget["transactionRequest"].(map[string]any)["to"] = "0x9999999999999999999999999999999999999999"

	tests := []struct {
		name    string
		token   string
		requote map[string]any
		wantErr bool
	}{
		{"output below slippage", testUSDC, lowOutput, true},
		{"output within slippage", testUSDC, withinSlippage, false},
		{"target differs from approved spender", testUSDC, newTarget, true},
		{"native source has no spender to match", types.NativeToken, newTarget, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := lifiSequenceServer(t, lifiQuoteFixture(), tt.requote)
			defer server.Close()

			l := NewLiFi(server.URL, "secret", server.Client())
			intent := testIntent(tt.token)
			routes, err := l.GetQuotes(context.Background(), intent)
			require.NoError(t, err)

			last := len(routes[0].Steps) - 1
			_, err = l.BuildStep(context.Background(), StepInput{Route: routes[0], StepIndex: last, Intent: intent})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRouteDrift)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLiFi_BuildStep_ComposedRouteQuotesIntermediateToken(t *testing.T) {
	const viaMint = "EPjFWJd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	var (
		mu       sync.Mutex
		toTokens []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		toTokens = append(toTokens, r.URL.Query().Get("toToken"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(lifiQuoteFixture())
	}))
	defer server.Close()

	l := NewLiFi(server.URL, "", server.Client())
	quoted := testIntent(types.NativeToken).WithDestinationToken(viaMint)
	routes, err := l.GetQuotes(context.Background(), quoted)
	require.NoError(t, err)

	route := routes[0]
	route.Steps = append(route.Steps, types.RouteStep{
		ChainKind: types.ChainSolana,
		Provider:  NameJupiter,
		TokenIn:   &types.TokenAmount{Token: viaMint, Amount: "4990000"},
		TokenOut:  "PRJmint1111111111111111111111111111111111111",
	})
	route.EstimatedOutput = types.TokenAmount{Token: "PRJmint1111111111111111111111111111111111111", Amount: "1"}

	intent := testIntent(types.NativeToken).WithDestinationToken("PRJmint1111111111111111111111111111111111111")
	_, err = l.BuildStep(context.Background(), StepInput{Route: route, StepIndex: 0, Intent: intent})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{viaMint, viaMint}, toTokens)
}
