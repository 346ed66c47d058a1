// Package finality verifies on-chain that a reported transaction is final
// before a session step is marked confirmed.
package finality

import (
	"context"
	"errors"

	"solbridge/pkg/types"
)

var (
	// ErrUnsupportedChain is returned when no RPC endpoint covers a chain
	ErrUnsupportedChain = errors.New("no finality checker for chain")

	// ErrInvalidReference is returned for malformed hashes or signatures
	ErrInvalidReference = errors.New("invalid transaction reference")

	// ErrTransactionFailed is returned when the transaction landed but reverted
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// Checker reports whether a transaction is final on its chain
type Checker interface {
	IsFinal(ctx context.Context, chainID types.ChainID, txRef string) (bool, error)
}

// Set maps chain kinds to their checkers. Kinds without an entry are
// unverified.
type Set map[types.ChainKind]Checker

// For returns the checker for kind, if any
func (s Set) For(kind types.ChainKind) (Checker, bool) {
	c, ok := s[kind]
	return c, ok && c != nil
}

// ChainScoped is implemented by checkers that only reach some chain ids
type ChainScoped interface {
	Covers(chainID types.ChainID) bool
}

// Uncovered reports whether kind has a checker that cannot verify chainID.
// Kinds without a checker are not uncovered; the policy gate decides them.
func (s Set) Uncovered(kind types.ChainKind, chainID types.ChainID) bool {
	c, ok := s.For(kind)
	if !ok {
		return false
	}
	scoped, ok := c.(ChainScoped)
	return ok && !scoped.Covers(chainID)
}
