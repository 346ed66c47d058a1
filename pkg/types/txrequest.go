package types

import (
	"encoding/json"
	"fmt"
)

// TxRequest describes a transaction the wallet must sign for one step.
// Implementations are discriminated by Kind.
type TxRequest interface {
	Kind() ChainKind
}

// EVMTxRequest is an account-model transaction descriptor
type EVMTxRequest struct {
	ChainID ChainID `json:"chainId"`
	From    string  `json:"from,omitempty"`
	To      string  `json:"to"`
	Data    string  `json:"data"`  // 0x-prefixed hex calldata
	Value   string  `json:"value"` // Integer string in wei
	Gas     string  `json:"gas,omitempty"`
}

// Kind implements TxRequest
func (EVMTxRequest) Kind() ChainKind { return ChainEVM }

// SolanaTxRequest carries a serialized Solana transaction that the key
// holder deserializes, signs and broadcasts.
type SolanaTxRequest struct {
	SerializedTx string `json:"serializedTx"` // Base64 encoded
}

// Kind implements TxRequest
func (SolanaTxRequest) Kind() ChainKind { return ChainSolana }

// TxEnvelope is the JSON form of a TxRequest
type TxEnvelope struct {
	Request TxRequest
}

// MarshalJSON writes the request with a "kind" discriminant
func (e TxEnvelope) MarshalJSON() ([]byte, error) {
	switch req := e.Request.(type) {
	case EVMTxRequest:
		return json.Marshal(struct {
			Kind ChainKind `json:"kind"`
			EVMTxRequest
		}{ChainEVM, req})
	case SolanaTxRequest:
		return json.Marshal(struct {
			Kind ChainKind `json:"kind"`
			SolanaTxRequest
		}{ChainSolana, req})
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unsupported tx request kind: %s", req.Kind())
	}
}

// UnmarshalJSON restores the concrete request type from the discriminant
func (e *TxEnvelope) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind ChainKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Kind {
	case ChainEVM:
		var req EVMTxRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		e.Request = req
	case ChainSolana:
		var req SolanaTxRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		e.Request = req
	default:
		return fmt.Errorf("unsupported tx request kind: %q", head.Kind)
	}
	return nil
}
