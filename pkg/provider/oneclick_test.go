package provider

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbridge/pkg/types"
)

const testDepositAddress = "0x2222222222222222222222222222222222222222"

type fakeOneClick struct {
	mu         sync.Mutex
	tokenCalls int
	quotes     []oneClickQuoteRequest
	submitted  map[string]string
}

func (f *fakeOneClick) Tokens(ctx context.Context) ([]oneClickToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	return []oneClickToken{
		{AssetID: "nep141:eth.omft.near", Symbol: "ETH", Blockchain: "eth"},
		{AssetID: "nep141:eth-usdc.omft.near", Symbol: "USDC", Blockchain: "eth", ContractAddress: strings.ToLower(testUSDC)},
		{AssetID: "nep141:sol.omft.near", Symbol: "SOL", Blockchain: "sol"},
		{AssetID: "nep141:sol-wsol.omft.near", Symbol: "wSOL", Blockchain: "sol", ContractAddress: testWSOLMint},
	}, nil
}

func (f *fakeOneClick) Quote(ctx context.Context, req oneClickQuoteRequest) (*oneClickQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, req)
	q := &oneClickQuote{AmountOut: "3000000", TimeEstimate: 20}
	if !req.Dry {
		q.DepositAddress = testDepositAddress
	}
	return q, nil
}

func (f *fakeOneClick) SubmitDeposit(ctx context.Context, depositAddress, txHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitted == nil {
		f.submitted = make(map[string]string)
	}
	f.submitted[depositAddress] = txHash
	return nil
}

func TestOneClick_GetQuotes(t *testing.T) {
	api := &fakeOneClick{}
	o := newOneClick(api)

	routes, err := o.GetQuotes(context.Background(), testIntent(testUSDC))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	route := routes[0]
	assert.Equal(t, NameOneClick, route.Provider)
	assert.True(t, strings.HasPrefix(route.RouteID, "oneclick-"))
	assert.Equal(t, "3000000", route.EstimatedOutput.Amount)
	require.Len(t, route.Steps, 1)
	assert.Equal(t, types.ChainEVM, route.Steps[0].ChainKind)

	require.Len(t, api.quotes, 1)
	req := api.quotes[0]
	assert.True(t, req.Dry)
	assert.Equal(t, 50, req.SlippageBps)
	assert.Equal(t, "nep141:eth-usdc.omft.near", req.OriginAsset)
	assert.Equal(t, "nep141:sol-wsol.omft.near", req.DestAsset)
	assert.Equal(t, testWallet, req.RefundTo)
	assert.Equal(t, testSolana, req.Recipient)

	// Token list is cached between quotes
	_, err = o.GetQuotes(context.Background(), testIntent(types.NativeToken))
	require.NoError(t, err)
	assert.Equal(t, 1, api.tokenCalls)
	assert.Equal(t, "nep141:eth.omft.near", api.quotes[1].OriginAsset)
}

func TestOneClick_UnsupportedChain(t *testing.T) {
	o := newOneClick(&fakeOneClick{})
	intent := testIntent(types.NativeToken)
	intent.SourceChainID = "999999"

	_, err := o.GetQuotes(context.Background(), intent)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestOneClick_BuildStepAndNotify(t *testing.T) {
	api := &fakeOneClick{}
	o := newOneClick(api)
	intent := testIntent(testUSDC)

	routes, err := o.GetQuotes(context.Background(), intent)
	require.NoError(t, err)

	tx, err := o.BuildStep(context.Background(), StepInput{SessionID: "s1", Route: routes[0], StepIndex: 0, Intent: intent})
	require.NoError(t, err)

	evm := tx.(types.EVMTxRequest)
	assert.True(t, strings.EqualFold(testUSDC, evm.To), "erc20 deposits call the token contract")
	assert.Equal(t, "0xa9059cbb", evm.Data[:10], "transfer selector")
	assert.Contains(t, strings.ToLower(evm.Data), strings.TrimPrefix(testDepositAddress, "0x"))
	assert.False(t, api.quotes[1].Dry, "execution needs a real deposit address")

	err = o.NotifySubmitted(context.Background(), Submission{SessionID: "s1", Route: routes[0], StepIndex: 0, TxRef: "0xhash"})
	require.NoError(t, err)
	assert.Equal(t, "0xhash", api.submitted[testDepositAddress])

	err = o.NotifySubmitted(context.Background(), Submission{SessionID: "other", StepIndex: 0, TxRef: "0xhash"})
	assert.Error(t, err)
}

func TestOneClick_NativeDeposit(t *testing.T) {
	o := newOneClick(&fakeOneClick{})
	intent := testIntent(types.NativeToken)

	routes, err := o.GetQuotes(context.Background(), intent)
	require.NoError(t, err)

	tx, err := o.BuildStep(context.Background(), StepInput{SessionID: "s1", Route: routes[0], Intent: intent})
	require.NoError(t, err)
	evm := tx.(types.EVMTxRequest)
	assert.True(t, strings.EqualFold(testDepositAddress, evm.To))
	assert.Equal(t, "0x", evm.Data)
	assert.Equal(t, "1000000", evm.Value)
}

func TestRegistry(t *testing.T) {
	lifi := NewLiFi("http://127.0.0.1:0", "", nil)
	oc := newOneClick(&fakeOneClick{})
	jup := NewJupiter("http://127.0.0.1:0", nil)

	r := NewRegistry(oc, lifi)
	r.RegisterSubProvider(NameJupiter, jup)

	require.Len(t, r.Providers(), 2, "sub-providers are not quoted")
	assert.Equal(t, NameOneClick, r.Providers()[0].Name())

	_, ok := r.StepBuilder(NameJupiter)
	assert.True(t, ok)
	_, ok = r.Notifier(NameOneClick)
	assert.True(t, ok)
	_, ok = r.Notifier(NameLiFi)
	assert.False(t, ok)
	_, ok = r.StepBuilder("unknown")
	assert.False(t, ok)

	assert.Equal(t, []string{NameJupiter, NameLiFi, NameOneClick}, r.Names())
}

func TestIsKnown(t *testing.T) {
	for _, name := range []string{"oneclick", "lifi", "debridge", "official", "jupiter"} {
		assert.True(t, IsKnown(name), name)
	}
	assert.False(t, IsKnown("evil"))
	assert.False(t, IsKnown(""))
	assert.False(t, IsKnown("LiFi"))
}
