package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"solbridge/pkg/types"
)

const (
	// DefaultLiFiURL is the public LI.FI API
	DefaultLiFiURL = "https://li.quest"

	lifiSolanaChainID = "1151111081099710"
	lifiNativeToken   = "0x0000000000000000000000000000000000000000"
	solanaNativeMint  = "11111111111111111111111111111111"
)

// LiFi quotes and executes routes through the LI.FI aggregator
type LiFi struct {
	api *jsonClient
}

// NewLiFi creates a LI.FI adapter. apiKey is optional.
func NewLiFi(baseURL, apiKey string, httpClient *http.Client) *LiFi {
	if baseURL == "" {
		baseURL = DefaultLiFiURL
	}
	api := newJSONClient(NameLiFi, baseURL, httpClient)
	if apiKey != "" {
		api.headers["x-lifi-api-key"] = apiKey
	}
	return &LiFi{api: api}
}

// Name implements Provider
func (l *LiFi) Name() string { return NameLiFi }

type lifiToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type lifiCost struct {
	Name   string    `json:"name"`
	Amount string    `json:"amount"`
	Token  lifiToken `json:"token"`
}

type lifiQuote struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	ToolDetails struct {
		Name string `json:"name"`
	} `json:"toolDetails"`
	Estimate struct {
		ToAmount          string     `json:"toAmount"`
		ToAmountMin       string     `json:"toAmountMin"`
		ApprovalAddress   string     `json:"approvalAddress"`
		ExecutionDuration float64    `json:"executionDuration"`
		FeeCosts          []lifiCost `json:"feeCosts"`
	} `json:"estimate"`
	TransactionRequest struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

func (l *LiFi) quote(ctx context.Context, intent types.TransferIntent) (*lifiQuote, error) {
	if intent.SourceChainKind != types.ChainEVM {
		return nil, fmt.Errorf("%w: lifi only supports evm sources", ErrNoRoute)
	}

	fromToken := intent.SourceToken
	if types.IsNativeToken(fromToken) {
		fromToken = lifiNativeToken
	}
	toToken := intent.DestinationToken
	if toToken == "SOL" {
		toToken = solanaNativeMint
	}

	query := url.Values{}
	query.Set("fromChain", intent.SourceChainID.String())
	query.Set("toChain", lifiSolanaChainID)
	query.Set("fromToken", fromToken)
	query.Set("toToken", toToken)
	query.Set("fromAmount", intent.SourceAmount)
	query.Set("fromAddress", intent.SourceAddress)
	query.Set("toAddress", intent.SolanaAddress)
	query.Set("slippage", slippageFraction(intent.SlippagePercent))

	var q lifiQuote
	if err := l.api.get(ctx, "/v1/quote", query, &q); err != nil {
		return nil, err
	}
	if q.Estimate.ToAmount == "" {
		return nil, fmt.Errorf("%w: lifi returned no estimate", ErrNoRoute)
	}
	return &q, nil
}

// GetQuotes implements Provider
func (l *LiFi) GetQuotes(ctx context.Context, intent types.TransferIntent) ([]types.NormalizedRoute, error) {
	q, err := l.quote(ctx, intent)
	if err != nil {
		return nil, err
	}

	tool := q.ToolDetails.Name
	if tool == "" {
		tool = q.Tool
	}

	var steps []types.RouteStep
	if !intent.IsNativeSource() && q.Estimate.ApprovalAddress != "" {
		steps = append(steps, approvalStep(intent, NameLiFi, q.Estimate.ApprovalAddress))
	}
	steps = append(steps, types.RouteStep{
		ChainKind:   types.ChainEVM,
		ChainID:     intent.SourceChainID,
		Provider:    NameLiFi,
		Description: fmt.Sprintf("Bridge to Solana via %s", tool),
		TokenIn:     &types.TokenAmount{Token: intent.SourceToken, Amount: intent.SourceAmount},
		TokenOut:    intent.DestinationToken,
	})

	fees := make([]types.TokenAmount, 0, len(q.Estimate.FeeCosts))
	for _, c := range q.Estimate.FeeCosts {
		token := c.Token.Address
		if token == lifiNativeToken {
			token = types.NativeToken
		}
		fees = append(fees, types.TokenAmount{Token: token, Amount: c.Amount})
	}

	route := types.NormalizedRoute{
		Provider:         NameLiFi,
		RouteID:          q.ID,
		Steps:            steps,
		EstimatedOutput:  types.TokenAmount{Token: intent.DestinationToken, Amount: q.Estimate.ToAmount},
		Fees:             fees,
		EstimatedSeconds: types.Seconds(int64(math.Ceil(q.Estimate.ExecutionDuration))),
	}
	return []types.NormalizedRoute{route}, nil
}

// BuildStep implements StepBuilder. Bridge steps are re-quoted so the
// calldata is fresh, and the fresh quote must still honour the signed route.
func (l *LiFi) BuildStep(ctx context.Context, in StepInput) (types.TxRequest, error) {
	step := in.Step()
	if step.Spender != "" {
		return approveTx(step.ChainID, in.Intent.SourceAddress, in.Intent.SourceToken, step.Spender, in.Intent.SourceAmount)
	}

	q, err := l.quote(ctx, requoteIntent(in))
	if err != nil {
		return nil, err
	}
	if err := checkRequote(in, q.TransactionRequest.To, q.Estimate.ToAmount); err != nil {
		return nil, err
	}
	value, err := decimalString(q.TransactionRequest.Value)
	if err != nil {
		return nil, err
	}
	gas := ""
	if q.TransactionRequest.GasLimit != "" {
		if gas, err = decimalString(q.TransactionRequest.GasLimit); err != nil {
			return nil, err
		}
	}

	return types.EVMTxRequest{
		ChainID: in.Intent.SourceChainID,
		From:    in.Intent.SourceAddress,
		To:      q.TransactionRequest.To,
		Data:    q.TransactionRequest.Data,
		Value:   value,
		Gas:     gas,
	}, nil
}

// slippageFraction converts a percent string to a fraction, "0.5" -> "0.005"
func slippageFraction(percent string) string {
	d, err := decimal.NewFromString(percent)
	if err != nil {
		d = decimal.RequireFromString("0.5")
	}
	return d.Div(decimal.NewFromInt(100)).String()
}

// SlippageBps converts a percent string to basis points, "0.5" -> 50
func SlippageBps(percent string) int {
	d, err := decimal.NewFromString(percent)
	if err != nil {
		return 50
	}
	return int(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}
