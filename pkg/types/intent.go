package types

import "strings"

// NativeToken is the token identifier used for a chain's native asset
const NativeToken = "native"

// TransferIntent describes a user's request to move value into Solana.
// It is created per quote request and never mutated.
type TransferIntent struct {
	SourceChainID    ChainID   `json:"sourceChainId"`
	SourceChainKind  ChainKind `json:"sourceChainType"`
	SourceToken      string    `json:"sourceToken"`      // Token address, or "native"
	SourceAmount     string    `json:"sourceAmount"`     // Integer string in smallest unit
	DestinationToken string    `json:"destinationToken"` // Solana mint or symbol
	SourceAddress    string    `json:"sourceAddress"`
	SolanaAddress    string    `json:"solanaAddress"`
	SlippagePercent  string    `json:"slippage"` // Percent, e.g. "0.5"
}

// IsNativeSource returns true if the source token is the chain's native asset
func (i TransferIntent) IsNativeSource() bool {
	return IsNativeToken(i.SourceToken)
}

// WithDestinationToken returns a copy of the intent targeting another token
func (i TransferIntent) WithDestinationToken(token string) TransferIntent {
	i.DestinationToken = token
	return i
}

// IsNativeToken reports whether a token identifier denotes a native asset
func IsNativeToken(token string) bool {
	t := strings.ToLower(strings.TrimSpace(token))
	switch t {
	case "", NativeToken, "0x0000000000000000000000000000000000000000", "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee":
		return true
	default:
		return false
	}
}
