package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solbridge/pkg/types"
)

// DefaultJupiterURL is the public Jupiter swap API
const DefaultJupiterURL = "https://lite-api.jup.ag/swap/v1"

// Jupiter swaps between Solana mints. It only executes the trailing swap
// step of composed routes.
type Jupiter struct {
	api *jsonClient
}

// NewJupiter creates a Jupiter adapter
func NewJupiter(baseURL string, httpClient *http.Client) *Jupiter {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	return &Jupiter{api: newJSONClient(NameJupiter, baseURL, httpClient)}
}

// Name returns the sub-provider name
func (j *Jupiter) Name() string { return NameJupiter }

// JupiterQuote is the subset of a Jupiter quote used here. Raw holds the
// full response, which the swap endpoint expects back verbatim.
type JupiterQuote struct {
	InAmount  string
	OutAmount string
	Raw       json.RawMessage
}

// Quote prices a swap of amount inputMint into outputMint
func (j *Jupiter) Quote(ctx context.Context, inputMint, outputMint, amount string, slippageBps int) (*JupiterQuote, error) {
	query := url.Values{}
	query.Set("inputMint", inputMint)
	query.Set("outputMint", outputMint)
	query.Set("amount", amount)
	query.Set("slippageBps", strconv.Itoa(slippageBps))

	var raw json.RawMessage
	if err := j.api.get(ctx, "/quote", query, &raw); err != nil {
		return nil, err
	}

	var parsed struct {
		InAmount  string `json:"inAmount"`
		OutAmount string `json:"outAmount"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode jupiter quote: %w", err)
	}
	if parsed.OutAmount == "" || parsed.InAmount == "" {
		return nil, fmt.Errorf("%w: jupiter returned an empty quote", ErrNoRoute)
	}

	return &JupiterQuote{InAmount: parsed.InAmount, OutAmount: parsed.OutAmount, Raw: raw}, nil
}

// Rate returns the swap rate of inputMint to outputMint as out/in for a
// reference amount.
func (j *Jupiter) Rate(ctx context.Context, inputMint, outputMint, amount string, slippageBps int) (num, den *big.Int, err error) {
	q, err := j.Quote(ctx, inputMint, outputMint, amount, slippageBps)
	if err != nil {
		return nil, nil, err
	}
	num, ok := new(big.Int).SetString(q.OutAmount, 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid jupiter out amount %q", q.OutAmount)
	}
	den, ok = new(big.Int).SetString(q.InAmount, 10)
	if !ok || den.Sign() == 0 {
		return nil, nil, fmt.Errorf("invalid jupiter in amount %q", q.InAmount)
	}
	return num, den, nil
}

// BuildStep implements StepBuilder. The returned transaction is decoded
// once here so malformed provider output is rejected server-side.
func (j *Jupiter) BuildStep(ctx context.Context, in StepInput) (types.TxRequest, error) {
	step := in.Step()
	if step.ChainKind != types.ChainSolana || step.TokenIn == nil || step.TokenOut == "" {
		return nil, fmt.Errorf("%w: jupiter only builds solana swap steps", ErrStepNotSupported)
	}

	q, err := j.Quote(ctx, step.TokenIn.Token, step.TokenOut, step.TokenIn.Amount, SlippageBps(in.Intent.SlippagePercent))
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"quoteResponse":    q.Raw,
		"userPublicKey":    in.Intent.SolanaAddress,
		"wrapAndUnwrapSol": true,
	}
	var resp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := j.api.post(ctx, "/swap", body, &resp); err != nil {
		return nil, err
	}

	if _, err := decodeSolanaTx(resp.SwapTransaction); err != nil {
		return nil, err
	}
	return types.SolanaTxRequest{SerializedTx: resp.SwapTransaction}, nil
}

func decodeSolanaTx(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid serialized transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}
