package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"solbridge/pkg/types"
)

const (
	// DefaultDeBridgeURL is the public DLN API
	DefaultDeBridgeURL = "https://dln.debridge.finance"

	debridgeSolanaChainID = "7565164"
	debridgeNativeToken   = "0x0000000000000000000000000000000000000000"
)

// DeBridge quotes and executes routes through deBridge DLN orders
type DeBridge struct {
	api *jsonClient
}

// NewDeBridge creates a deBridge adapter
func NewDeBridge(baseURL string, httpClient *http.Client) *DeBridge {
	if baseURL == "" {
		baseURL = DefaultDeBridgeURL
	}
	return &DeBridge{api: newJSONClient(NameDeBridge, baseURL, httpClient)}
}

// Name implements Provider
func (d *DeBridge) Name() string { return NameDeBridge }

type debridgeTokenAmount struct {
	Address           string `json:"address"`
	Amount            string `json:"amount"`
	RecommendedAmount string `json:"recommendedAmount"`
}

type debridgeOrder struct {
	OrderID    string `json:"orderId"`
	FixFee     string `json:"fixFee"`
	Estimation struct {
		SrcChainTokenIn  debridgeTokenAmount `json:"srcChainTokenIn"`
		DstChainTokenOut debridgeTokenAmount `json:"dstChainTokenOut"`
	} `json:"estimation"`
	Order struct {
		ApproximateFulfillmentDelay int64 `json:"approximateFulfillmentDelay"`
	} `json:"order"`
	Tx struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
}

// expectedOutput prefers the recommended amount over the raw estimate
func (o *debridgeOrder) expectedOutput() string {
	if o.Estimation.DstChainTokenOut.RecommendedAmount != "" {
		return o.Estimation.DstChainTokenOut.RecommendedAmount
	}
	return o.Estimation.DstChainTokenOut.Amount
}

func (d *DeBridge) createTx(ctx context.Context, intent types.TransferIntent) (*debridgeOrder, error) {
	if intent.SourceChainKind != types.ChainEVM {
		return nil, fmt.Errorf("%w: debridge only supports evm sources", ErrNoRoute)
	}

	tokenIn := intent.SourceToken
	if types.IsNativeToken(tokenIn) {
		tokenIn = debridgeNativeToken
	}
	tokenOut := intent.DestinationToken
	if tokenOut == "SOL" {
		tokenOut = solanaNativeMint
	}

	query := url.Values{}
	query.Set("srcChainId", intent.SourceChainID.String())
	query.Set("srcChainTokenIn", tokenIn)
	query.Set("srcChainTokenInAmount", intent.SourceAmount)
	query.Set("dstChainId", debridgeSolanaChainID)
	query.Set("dstChainTokenOut", tokenOut)
	query.Set("dstChainTokenOutAmount", "auto")
	query.Set("dstChainTokenOutRecipient", intent.SolanaAddress)
	query.Set("senderAddress", intent.SourceAddress)
	query.Set("srcChainOrderAuthorityAddress", intent.SourceAddress)
	query.Set("dstChainOrderAuthorityAddress", intent.SolanaAddress)
	query.Set("prependOperatingExpenses", "true")

	var order debridgeOrder
	if err := d.api.get(ctx, "/v1.0/dln/order/create-tx", query, &order); err != nil {
		return nil, err
	}
	if order.Estimation.DstChainTokenOut.Amount == "" {
		return nil, fmt.Errorf("%w: debridge returned no estimation", ErrNoRoute)
	}
	return &order, nil
}

// GetQuotes implements Provider
func (d *DeBridge) GetQuotes(ctx context.Context, intent types.TransferIntent) ([]types.NormalizedRoute, error) {
	order, err := d.createTx(ctx, intent)
	if err != nil {
		return nil, err
	}

	var steps []types.RouteStep
	if !intent.IsNativeSource() && order.Tx.To != "" {
		steps = append(steps, approvalStep(intent, NameDeBridge, order.Tx.To))
	}
	steps = append(steps, types.RouteStep{
		ChainKind:   types.ChainEVM,
		ChainID:     intent.SourceChainID,
		Provider:    NameDeBridge,
		Description: "Create DLN order to Solana",
		TokenIn:     &types.TokenAmount{Token: intent.SourceToken, Amount: intent.SourceAmount},
		TokenOut:    intent.DestinationToken,
	})

	output := order.expectedOutput()

	var fees []types.TokenAmount
	if order.FixFee != "" {
		fees = append(fees, types.TokenAmount{Token: types.NativeToken, Amount: order.FixFee})
	}

	route := types.NormalizedRoute{
		Provider:        NameDeBridge,
		RouteID:         order.OrderID,
		Steps:           steps,
		EstimatedOutput: types.TokenAmount{Token: intent.DestinationToken, Amount: output},
		Fees:            fees,
	}
	if order.Order.ApproximateFulfillmentDelay > 0 {
		route.EstimatedSeconds = types.Seconds(order.Order.ApproximateFulfillmentDelay)
	}
	return []types.NormalizedRoute{route}, nil
}

// BuildStep implements StepBuilder
func (d *DeBridge) BuildStep(ctx context.Context, in StepInput) (types.TxRequest, error) {
	step := in.Step()
	if step.Spender != "" {
		return approveTx(step.ChainID, in.Intent.SourceAddress, in.Intent.SourceToken, step.Spender, in.Intent.SourceAmount)
	}

	order, err := d.createTx(ctx, requoteIntent(in))
	if err != nil {
		return nil, err
	}
	if err := checkRequote(in, order.Tx.To, order.expectedOutput()); err != nil {
		return nil, err
	}
	value, err := decimalString(order.Tx.Value)
	if err != nil {
		return nil, err
	}

	return types.EVMTxRequest{
		ChainID: in.Intent.SourceChainID,
		From:    in.Intent.SourceAddress,
		To:      order.Tx.To,
		Data:    order.Tx.Data,
		Value:   value,
	}, nil
}
