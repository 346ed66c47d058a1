package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"solbridge/pkg/types"
)

const (
	tokenListTTL      = 5 * time.Minute
	depositAddressTTL = 24 * time.Hour
	quoteDeadline     = 24 * time.Hour
)

// oneClickChains maps source chain ids to 1Click blockchain names
var oneClickChains = map[string]string{
	"1":       "eth",
	"10":      "op",
	"56":      "bsc",
	"137":     "pol",
	"8453":    "base",
	"42161":   "arb",
	"43114":   "avax",
	"solana":  "sol",
	"bitcoin": "btc",
	"ton":     "ton",
}

// oneClickToken is the subset of a 1Click token used for asset lookup
type oneClickToken struct {
	AssetID         string
	Symbol          string
	Blockchain      string
	ContractAddress string
}

type oneClickQuoteRequest struct {
	Dry         bool
	SlippageBps int
	OriginAsset string
	DestAsset   string
	Amount      string
	RefundTo    string
	Recipient   string
}

type oneClickQuote struct {
	DepositAddress string
	DepositMemo    string
	AmountOut      string
	TimeEstimate   int64
}

// oneClickAPI is the slice of the 1Click API the adapter depends on
type oneClickAPI interface {
	Tokens(ctx context.Context) ([]oneClickToken, error)
	Quote(ctx context.Context, req oneClickQuoteRequest) (*oneClickQuote, error)
	SubmitDeposit(ctx context.Context, depositAddress, txHash string) error
}

// OneClick quotes and executes routes through NEAR Intents 1Click
// deposit addresses.
type OneClick struct {
	api oneClickAPI

	mu       sync.Mutex
	tokens   []oneClickToken
	loadedAt time.Time

	deposits *expirable.LRU[string, string]
}

// NewOneClick creates a 1Click adapter backed by the 1Click SDK
func NewOneClick(jwtToken, baseURL string, httpClient *http.Client) *OneClick {
	return newOneClick(newSDKClient(jwtToken, baseURL, httpClient))
}

func newOneClick(api oneClickAPI) *OneClick {
	return &OneClick{
		api:      api,
		deposits: expirable.NewLRU[string, string](4096, nil, depositAddressTTL),
	}
}

// Name implements Provider
func (o *OneClick) Name() string { return NameOneClick }

// GetQuotes implements Provider. Listing uses a dry quote, which carries
// no deposit address.
func (o *OneClick) GetQuotes(ctx context.Context, intent types.TransferIntent) ([]types.NormalizedRoute, error) {
	req, err := o.quoteRequest(ctx, intent, true)
	if err != nil {
		return nil, err
	}

	q, err := o.api.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if q.AmountOut == "" {
		return nil, fmt.Errorf("%w: 1click returned no output amount", ErrNoRoute)
	}

	route := types.NormalizedRoute{
		Provider: NameOneClick,
		RouteID:  oneClickRouteID(req),
		Steps: []types.RouteStep{{
			ChainKind:   intent.SourceChainKind,
			ChainID:     intent.SourceChainID,
			Provider:    NameOneClick,
			Description: "Deposit to NEAR Intents 1Click",
			TokenIn:     &types.TokenAmount{Token: intent.SourceToken, Amount: intent.SourceAmount},
			TokenOut:    intent.DestinationToken,
		}},
		EstimatedOutput: types.TokenAmount{Token: intent.DestinationToken, Amount: q.AmountOut},
		Fees:            []types.TokenAmount{},
	}
	if q.TimeEstimate > 0 {
		route.EstimatedSeconds = types.Seconds(q.TimeEstimate)
	}
	return []types.NormalizedRoute{route}, nil
}

// BuildStep implements StepBuilder. A real quote is requested to obtain a
// deposit address, which is remembered for NotifySubmitted.
func (o *OneClick) BuildStep(ctx context.Context, in StepInput) (types.TxRequest, error) {
	step := in.Step()
	if step.ChainKind != types.ChainEVM {
		return nil, fmt.Errorf("%w: 1click deposits from %s wallets", ErrStepNotSupported, step.ChainKind)
	}

	req, err := o.quoteRequest(ctx, in.Intent, false)
	if err != nil {
		return nil, err
	}
	q, err := o.api.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if q.DepositAddress == "" {
		return nil, fmt.Errorf("1click quote returned no deposit address")
	}
	if q.DepositMemo != "" {
		return nil, fmt.Errorf("%w: deposit requires a memo", ErrStepNotSupported)
	}

	tx, err := depositTx(in.Intent.SourceChainID, in.Intent.SourceAddress, in.Intent.SourceToken, q.DepositAddress, in.Intent.SourceAmount)
	if err != nil {
		return nil, err
	}

	o.deposits.Add(depositKey(in.SessionID, in.StepIndex), q.DepositAddress)
	return tx, nil
}

// NotifySubmitted implements SubmissionNotifier
func (o *OneClick) NotifySubmitted(ctx context.Context, sub Submission) error {
	addr, ok := o.deposits.Get(depositKey(sub.SessionID, sub.StepIndex))
	if !ok {
		return fmt.Errorf("no deposit address recorded for session %s step %d", sub.SessionID, sub.StepIndex)
	}
	return o.api.SubmitDeposit(ctx, addr, sub.TxRef)
}

func (o *OneClick) quoteRequest(ctx context.Context, intent types.TransferIntent, dry bool) (oneClickQuoteRequest, error) {
	chain, ok := oneClickChains[strings.ToLower(intent.SourceChainID.String())]
	if !ok {
		return oneClickQuoteRequest{}, fmt.Errorf("%w: chain %s is not supported by 1click", ErrNoRoute, intent.SourceChainID)
	}

	tokens, err := o.supportedTokens(ctx)
	if err != nil {
		return oneClickQuoteRequest{}, err
	}

	origin, err := findOneClickAsset(tokens, chain, intent.SourceToken)
	if err != nil {
		return oneClickQuoteRequest{}, fmt.Errorf("source token error: %w", err)
	}
	dest, err := findOneClickAsset(tokens, "sol", intent.DestinationToken)
	if err != nil {
		return oneClickQuoteRequest{}, fmt.Errorf("destination token error: %w", err)
	}

	return oneClickQuoteRequest{
		Dry:         dry,
		SlippageBps: SlippageBps(intent.SlippagePercent),
		OriginAsset: origin.AssetID,
		DestAsset:   dest.AssetID,
		Amount:      intent.SourceAmount,
		RefundTo:    intent.SourceAddress,
		Recipient:   intent.SolanaAddress,
	}, nil
}

func (o *OneClick) supportedTokens(ctx context.Context) ([]oneClickToken, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tokens != nil && time.Since(o.loadedAt) < tokenListTTL {
		return o.tokens, nil
	}

	tokens, err := o.api.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	o.tokens = tokens
	o.loadedAt = time.Now()
	return tokens, nil
}

// findOneClickAsset matches a token by contract address, or for native
// tokens and symbols, by symbol on the chain.
func findOneClickAsset(tokens []oneClickToken, chain, token string) (*oneClickToken, error) {
	native := types.IsNativeToken(token) || token == solanaNativeMint
	for i := range tokens {
		t := &tokens[i]
		if !strings.EqualFold(t.Blockchain, chain) {
			continue
		}
		switch {
		case native && t.ContractAddress == "" && chain == "sol" && strings.EqualFold(t.Symbol, "SOL"):
			return t, nil
		case native && t.ContractAddress == "" && chain != "sol":
			return t, nil
		case !native && t.ContractAddress != "" && strings.EqualFold(t.ContractAddress, token):
			return t, nil
		}
	}

	// Try symbol match
	for i := range tokens {
		t := &tokens[i]
		if strings.EqualFold(t.Blockchain, chain) && strings.EqualFold(t.Symbol, token) {
			return t, nil
		}
	}

	return nil, fmt.Errorf("%w: token '%s' not found on chain '%s'", ErrNoRoute, token, chain)
}

func oneClickRouteID(req oneClickQuoteRequest) string {
	sum := sha256.Sum256([]byte(req.OriginAsset + "|" + req.DestAsset + "|" + req.Amount))
	return "oneclick-" + hex.EncodeToString(sum[:8])
}

func depositKey(sessionID string, step int) string {
	return fmt.Sprintf("%s/%d", sessionID, step)
}

// sdkClient wraps the 1Click SDK
type sdkClient struct {
	client *oneclick.APIClient
	jwt    string
}

func newSDKClient(jwtToken, baseURL string, httpClient *http.Client) *sdkClient {
	config := oneclick.NewConfiguration()
	if baseURL != "" {
		config.Servers = oneclick.ServerConfigurations{{URL: strings.TrimRight(baseURL, "/")}}
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return &sdkClient{
		client: oneclick.NewAPIClient(config),
		jwt:    jwtToken,
	}
}

func (c *sdkClient) authContext(ctx context.Context) context.Context {
	if c.jwt == "" {
		return ctx
	}
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.jwt)
}

func (c *sdkClient) Tokens(ctx context.Context) ([]oneClickToken, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.authContext(ctx)).Execute()
	if err != nil {
		return nil, apiError("failed to get tokens", httpResp, err)
	}
	defer httpResp.Body.Close()

	tokens := make([]oneClickToken, 0, len(resp))
	for _, t := range resp {
		tokens = append(tokens, oneClickToken{
			AssetID:         t.GetAssetId(),
			Symbol:          t.GetSymbol(),
			Blockchain:      t.GetBlockchain(),
			ContractAddress: t.GetContractAddress(),
		})
	}
	return tokens, nil
}

func (c *sdkClient) Quote(ctx context.Context, req oneClickQuoteRequest) (*oneClickQuote, error) {
	quoteReq := oneclick.NewQuoteRequest(
		req.Dry,                       // dry - false to get a real deposit address
		"EXACT_INPUT",                 // swapType
		100,                           // slippageTolerance, replaced below
		req.OriginAsset,               // originAsset
		"ORIGIN_CHAIN",                // depositType
		req.DestAsset,                 // destinationAsset
		req.Amount,                    // amount in smallest unit
		req.RefundTo,                  // refundTo
		"ORIGIN_CHAIN",                // refundType
		req.Recipient,                 // recipient
		"DESTINATION_CHAIN",           // recipientType
		time.Now().Add(quoteDeadline), // deadline
	)
	setNumber(&quoteReq.SlippageTolerance, req.SlippageBps)

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(c.authContext(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		return nil, apiError("failed to get quote", httpResp, err)
	}
	defer httpResp.Body.Close()

	if resp == nil {
		return nil, fmt.Errorf("empty quote response")
	}

	q := resp.GetQuote()
	out := &oneClickQuote{
		DepositAddress: q.GetDepositAddress(),
		AmountOut:      q.GetAmountOut(),
		TimeEstimate:   int64(math.Ceil(float64(q.GetTimeEstimate()))),
	}
	if q.HasDepositMemo() {
		out.DepositMemo = q.GetDepositMemo()
	}
	return out, nil
}

func (c *sdkClient) SubmitDeposit(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(depositAddress, txHash)

	_, httpResp, err := c.client.OneClickAPI.SubmitDepositTx(c.authContext(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return apiError("failed to submit deposit", httpResp, err)
	}
	defer httpResp.Body.Close()
	return nil
}

// setNumber assigns an int to a generated numeric field whatever its width
func setNumber[T ~int | ~int32 | ~int64 | ~float32 | ~float64](dst *T, v int) {
	*dst = T(v)
}

// apiError extracts the upstream message from a failed SDK call
func apiError(op string, httpResp *http.Response, err error) error {
	if httpResp == nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer httpResp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
	if readErr != nil || len(body) == 0 {
		return fmt.Errorf("%s (status: %d): %w", op, httpResp.StatusCode, err)
	}

	var errorResp map[string]any
	if jsonErr := json.Unmarshal(body, &errorResp); jsonErr == nil {
		if message, ok := errorResp["message"].(string); ok {
			return &StatusError{Provider: NameOneClick, StatusCode: httpResp.StatusCode, Message: message}
		}
	}
	return &StatusError{Provider: NameOneClick, StatusCode: httpResp.StatusCode, Message: strings.TrimSpace(string(body))}
}
