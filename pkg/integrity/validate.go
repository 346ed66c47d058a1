package integrity

import (
	"fmt"
	"math/big"
	"strings"

	"solbridge/pkg/provider"
	"solbridge/pkg/types"
)

// MaxOutputMultiple bounds a route's output relative to its input amount
const MaxOutputMultiple = 1000

// ValidateForExecution runs every pre-execution check on a signed route.
// It never mutates state.
func (s *Signer) ValidateForExecution(signed types.SignedRoute, intent types.TransferIntent) error {
	if !provider.IsKnown(signed.Provider) {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, signed.Provider)
	}

	if err := s.Verify(signed, intent); err != nil {
		return err
	}

	if err := CheckAmounts(signed.NormalizedRoute, intent); err != nil {
		return err
	}

	return CheckSteps(signed.NormalizedRoute)
}

// CheckAmounts rejects outputs that are negative or exceed a generous
// multiple of the input, and fees that exceed the input. Only fees
// denominated in the source token are comparable with the input amount.
func CheckAmounts(route types.NormalizedRoute, intent types.TransferIntent) error {
	in, ok := parseAmount(intent.SourceAmount)
	if !ok {
		return fmt.Errorf("%w: invalid input amount %q", ErrAmountSanity, intent.SourceAmount)
	}

	out, ok := parseAmount(route.EstimatedOutput.Amount)
	if !ok {
		return fmt.Errorf("%w: invalid output amount %q", ErrAmountSanity, route.EstimatedOutput.Amount)
	}

	limit := new(big.Int).Mul(in, big.NewInt(MaxOutputMultiple))
	if out.Cmp(limit) > 0 {
		return fmt.Errorf("%w: output %s exceeds %dx input %s", ErrAmountSanity, out, MaxOutputMultiple, in)
	}

	fees := new(big.Int)
	for _, fee := range route.Fees {
		amount, ok := parseAmount(fee.Amount)
		if !ok {
			return fmt.Errorf("%w: invalid fee amount %q", ErrAmountSanity, fee.Amount)
		}
		if sameToken(fee.Token, intent.SourceToken) {
			fees.Add(fees, amount)
		}
	}
	if fees.Cmp(in) > 0 {
		return fmt.Errorf("%w: fees %s exceed input %s", ErrAmountSanity, fees, in)
	}

	return nil
}

// CheckSteps requires at least one step and only supported chain kinds
func CheckSteps(route types.NormalizedRoute) error {
	if len(route.Steps) == 0 {
		return fmt.Errorf("%w: route has no steps", ErrInvalidSteps)
	}
	for i, step := range route.Steps {
		if !step.ChainKind.Valid() {
			return fmt.Errorf("%w: step %d has unsupported chain type %q", ErrInvalidSteps, i, step.ChainKind)
		}
	}
	return nil
}

func parseAmount(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

func sameToken(a, b string) bool {
	if types.IsNativeToken(a) && types.IsNativeToken(b) {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
