package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ChainKind identifies the execution model of a chain
type ChainKind string

const (
	ChainEVM     ChainKind = "evm"     // Account-model chains (Ethereum, Arbitrum, Base, ...)
	ChainSolana  ChainKind = "solana"  // Solana
	ChainBitcoin ChainKind = "bitcoin" // UTXO chains
	ChainCosmos  ChainKind = "cosmos"  // Cosmos SDK chains
	ChainTON     ChainKind = "ton"     // TON
)

// AllChainKinds returns every supported chain kind
func AllChainKinds() []ChainKind {
	return []ChainKind{ChainEVM, ChainSolana, ChainBitcoin, ChainCosmos, ChainTON}
}

// Valid returns true if the chain kind belongs to the supported set
func (k ChainKind) Valid() bool {
	switch k {
	case ChainEVM, ChainSolana, ChainBitcoin, ChainCosmos, ChainTON:
		return true
	default:
		return false
	}
}

// ParseChainKind converts a user supplied string into a ChainKind
func ParseChainKind(s string) (ChainKind, error) {
	kind := ChainKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case "eth", "ethereum":
		return ChainEVM, nil
	case "sol":
		return ChainSolana, nil
	case "btc":
		return ChainBitcoin, nil
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unsupported chain kind: %q", s)
	}
	return kind, nil
}

// ChainID is a chain identifier. EVM chains use their numeric id, other
// chains a symbolic name. It decodes from either a JSON number or string.
type ChainID string

// UnmarshalJSON accepts both 1 and "1"
func (c *ChainID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChainID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chain id must be a number or string: %w", err)
	}
	*c = ChainID(n.String())
	return nil
}

// String returns the chain id as a string
func (c ChainID) String() string {
	return string(c)
}

// IsNumeric reports whether the id is a plain decimal number
func (c ChainID) IsNumeric() bool {
	if c == "" {
		return false
	}
	for _, r := range string(c) {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
