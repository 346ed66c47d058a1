package provider

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"solbridge/pkg/types"
)

// ERC20 transfer and approve function ABI
const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	return parsed
}

// approveTx builds an ERC20 approve(spender, amount) call on the token
func approveTx(chainID types.ChainID, from, token, spender, amount string) (types.EVMTxRequest, error) {
	if !common.IsHexAddress(token) {
		return types.EVMTxRequest{}, fmt.Errorf("invalid token contract address: %s", token)
	}
	if !common.IsHexAddress(spender) {
		return types.EVMTxRequest{}, fmt.Errorf("invalid spender address: %s", spender)
	}
	value, err := parseUint(amount)
	if err != nil {
		return types.EVMTxRequest{}, err
	}

	data, err := erc20.Pack("approve", common.HexToAddress(spender), value)
	if err != nil {
		return types.EVMTxRequest{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	return types.EVMTxRequest{
		ChainID: chainID,
		From:    from,
		To:      common.HexToAddress(token).Hex(),
		Data:    hexutil.Encode(data),
		Value:   "0",
	}, nil
}

// depositTx builds a transfer of amount to a deposit address: a plain value
// transfer for native tokens, an ERC20 transfer call otherwise.
func depositTx(chainID types.ChainID, from, token, to, amount string) (types.EVMTxRequest, error) {
	if !common.IsHexAddress(to) {
		return types.EVMTxRequest{}, fmt.Errorf("invalid deposit address: %s", to)
	}
	value, err := parseUint(amount)
	if err != nil {
		return types.EVMTxRequest{}, err
	}

	if types.IsNativeToken(token) {
		return types.EVMTxRequest{
			ChainID: chainID,
			From:    from,
			To:      common.HexToAddress(to).Hex(),
			Data:    "0x",
			Value:   value.String(),
			Gas:     "21000",
		}, nil
	}

	if !common.IsHexAddress(token) {
		return types.EVMTxRequest{}, fmt.Errorf("invalid token contract address: %s", token)
	}
	data, err := erc20.Pack("transfer", common.HexToAddress(to), value)
	if err != nil {
		return types.EVMTxRequest{}, fmt.Errorf("failed to pack transfer data: %w", err)
	}

	return types.EVMTxRequest{
		ChainID: chainID,
		From:    from,
		To:      common.HexToAddress(token).Hex(),
		Data:    hexutil.Encode(data),
		Value:   "0",
	}, nil
}

// approvalStep describes an allowance step preceding a bridge call
func approvalStep(intent types.TransferIntent, provider, spender string) types.RouteStep {
	return types.RouteStep{
		ChainKind:   types.ChainEVM,
		ChainID:     intent.SourceChainID,
		Provider:    provider,
		Description: fmt.Sprintf("Approve %s to spend %s", provider, intent.SourceToken),
		TokenIn:     &types.TokenAmount{Token: intent.SourceToken, Amount: intent.SourceAmount},
		Spender:     spender,
	}
}

// requoteIntent is the intent a bridge step is quoted with. Composed
// routes bridge into an intermediate token first.
func requoteIntent(in StepInput) types.TransferIntent {
	if out := in.Step().TokenOut; out != "" {
		return in.Intent.WithDestinationToken(out)
	}
	return in.Intent
}

// signedStepOutput is the amount the signed route expects the step to
// deliver: the next step's input, or the route output for the last step.
func signedStepOutput(in StepInput) string {
	if next := in.StepIndex + 1; next < len(in.Route.Steps) && in.Route.Steps[next].TokenIn != nil {
		return in.Route.Steps[next].TokenIn.Amount
	}
	return in.Route.EstimatedOutput.Amount
}

// checkRequote rejects a fresh bridge transaction whose target is not the
// spender approved earlier in the route, or whose output fell below the
// signed output less the intent's slippage.
func checkRequote(in StepInput, to, output string) error {
	for _, step := range in.Route.Steps[:in.StepIndex] {
		if step.Spender != "" && !strings.EqualFold(step.Spender, to) {
			return fmt.Errorf("%w: target %s is not the approved spender %s", ErrRouteDrift, to, step.Spender)
		}
	}

	signed, err := decimal.NewFromString(signedStepOutput(in))
	if err != nil {
		return fmt.Errorf("%w: invalid signed output %q", ErrRouteDrift, signedStepOutput(in))
	}
	fresh, err := decimal.NewFromString(output)
	if err != nil {
		return fmt.Errorf("%w: invalid quoted output %q", ErrRouteDrift, output)
	}

	slippage, err := decimal.NewFromString(in.Intent.SlippagePercent)
	if err != nil || slippage.IsNegative() {
		slippage = decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	floor := signed.Mul(hundred.Sub(slippage)).Div(hundred)
	if fresh.LessThan(floor) {
		return fmt.Errorf("%w: output %s is below the signed minimum %s", ErrRouteDrift, fresh, floor.Ceil())
	}
	return nil
}

func parseUint(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	return n, nil
}

// decimalString converts a decimal or 0x-prefixed hex quantity to decimal
func decimalString(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0", nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return "0", nil
		}
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return "", fmt.Errorf("invalid hex quantity %q", s)
		}
		return n.String(), nil
	}
	n, err := parseUint(s)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}
