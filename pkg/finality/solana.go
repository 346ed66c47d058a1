package finality

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"solbridge/pkg/types"
)

// SignatureStatusReader is the subset of rpc.Client the Solana checker needs
type SignatureStatusReader interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SolanaChecker checks signature statuses against a commitment level
type SolanaChecker struct {
	client     SignatureStatusReader
	commitment rpc.CommitmentType
}

// NewSolanaChecker creates a checker. commitment is "processed",
// "confirmed" or "finalized"; anything else means confirmed.
func NewSolanaChecker(client SignatureStatusReader, commitment string) *SolanaChecker {
	return &SolanaChecker{client: client, commitment: ParseCommitment(commitment)}
}

// DialSolana creates a checker for an RPC URL
func DialSolana(rpcURL, commitment string) *SolanaChecker {
	return NewSolanaChecker(rpc.New(rpcURL), commitment)
}

// ParseCommitment maps a configured commitment name to its rpc level
func ParseCommitment(s string) rpc.CommitmentType {
	switch strings.ToLower(s) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// IsFinal implements Checker. chainID is ignored; Solana has one cluster
// per RPC endpoint.
func (s *SolanaChecker) IsFinal(ctx context.Context, _ types.ChainID, txRef string) (bool, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	res, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, fmt.Errorf("failed to get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return false, nil
	}

	status := res.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrTransactionFailed, txRef, status.Err)
	}
	return reaches(status.ConfirmationStatus, s.commitment), nil
}

func reaches(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	rank := map[string]int{
		string(rpc.ConfirmationStatusProcessed): 1,
		string(rpc.ConfirmationStatusConfirmed): 2,
		string(rpc.ConfirmationStatusFinalized): 3,
	}
	got, want := rank[string(status)], rank[string(commitment)]
	return got > 0 && got >= want
}
