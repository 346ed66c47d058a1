package parser

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"solbridge/pkg/types"
)

var (
	integerPattern = regexp.MustCompile(`^\d+$`)
	symbolPattern  = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)
	maxSlippage    = decimal.NewFromInt(50)
)

// ValidateIntent checks every field of a transfer intent and returns a
// *ValidationError describing all problems found, or nil.
func ValidateIntent(intent *types.TransferIntent) error {
	verr := &ValidationError{}

	if intent.SourceChainID == "" {
		verr.add("sourceChainId", "is required")
	}

	if !intent.SourceChainKind.Valid() {
		verr.add("sourceChainType", "must be one of evm, solana, bitcoin, cosmos, ton")
	} else if intent.SourceChainKind == types.ChainEVM && !intent.SourceChainID.IsNumeric() {
		verr.add("sourceChainId", "must be numeric for evm chains")
	}

	if strings.TrimSpace(intent.SourceToken) == "" {
		verr.add("sourceToken", "is required")
	} else if intent.SourceChainKind == types.ChainEVM && !intent.IsNativeSource() && !common.IsHexAddress(intent.SourceToken) {
		verr.add("sourceToken", "must be a hex token address or \"native\"")
	}

	if !integerPattern.MatchString(intent.SourceAmount) || strings.TrimLeft(intent.SourceAmount, "0") == "" {
		verr.add("sourceAmount", "must be a positive integer in the token's smallest unit")
	}

	if dest := strings.TrimSpace(intent.DestinationToken); dest == "" {
		verr.add("destinationToken", "is required")
	} else if !symbolPattern.MatchString(dest) {
		if _, err := solana.PublicKeyFromBase58(dest); err != nil {
			verr.add("destinationToken", "must be a Solana mint address or token symbol")
		}
	}

	if strings.TrimSpace(intent.SourceAddress) == "" {
		verr.add("sourceAddress", "is required")
	} else if intent.SourceChainKind == types.ChainEVM && !common.IsHexAddress(intent.SourceAddress) {
		verr.add("sourceAddress", "must be a hex address")
	}

	if _, err := solana.PublicKeyFromBase58(intent.SolanaAddress); err != nil {
		verr.add("solanaAddress", "must be a base58 Solana address")
	}

	if intent.SlippagePercent != "" {
		slippage, err := decimal.NewFromString(intent.SlippagePercent)
		if err != nil || slippage.IsNegative() || slippage.GreaterThan(maxSlippage) {
			verr.add("slippage", "must be a percentage between 0 and 50")
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// DefaultSlippage is applied when an intent leaves slippage empty
const DefaultSlippage = "0.5"

// NormalizeIntent fills defaults and trims whitespace. It returns a copy.
func NormalizeIntent(intent types.TransferIntent) types.TransferIntent {
	intent.SourceChainID = types.ChainID(strings.TrimSpace(string(intent.SourceChainID)))
	intent.SourceToken = strings.TrimSpace(intent.SourceToken)
	intent.SourceAmount = strings.TrimSpace(intent.SourceAmount)
	intent.DestinationToken = strings.TrimSpace(intent.DestinationToken)
	intent.SourceAddress = strings.TrimSpace(intent.SourceAddress)
	intent.SolanaAddress = strings.TrimSpace(intent.SolanaAddress)
	intent.SlippagePercent = strings.TrimSpace(intent.SlippagePercent)
	if intent.SlippagePercent == "" {
		intent.SlippagePercent = DefaultSlippage
	}
	if types.IsNativeToken(intent.SourceToken) {
		intent.SourceToken = types.NativeToken
	}
	return intent
}
