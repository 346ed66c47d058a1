// Package sessionauth implements the wallet challenge that authorizes a
// caller to drive a session.
package sessionauth

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultTTL is how long a challenge may be answered
	DefaultTTL = time.Hour

	// DefaultSkew tolerates callers whose clock runs ahead of ours
	DefaultSkew = 60 * time.Second
)

// ErrNoSigningKey is returned when no challenge key is configured
var ErrNoSigningKey = errors.New("session signing key is not configured")

// Binding is the session identity a challenge is issued for
type Binding struct {
	SessionID     string
	SourceAddress string
	SolanaAddress string
	Provider      string
	RouteID       string
}

// Payload is the signed content of a challenge token
type Payload struct {
	SessionID     string `json:"sid"`
	SourceAddress string `json:"src"`
	SolanaAddress string `json:"dst"`
	Provider      string `json:"prv"`
	RouteID       string `json:"rid"`
	Nonce         string `json:"nonce"`
	IssuedAt      int64  `json:"iat"` // Unix milliseconds
	ExpiresAt     int64  `json:"exp"` // Unix milliseconds
	Host          string `json:"host,omitempty"`
}

// Challenge is handed to the wallet driver
type Challenge struct {
	Token     string `json:"challenge"`
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Proof answers a challenge with the source wallet's signature
type Proof struct {
	Token     string `json:"challenge"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Options configures an Authority
type Options struct {
	AllowEphemeralKey bool
	TTL               time.Duration
	Skew              time.Duration
	Logger            *zap.Logger
	Now               func() time.Time
}

// Authority issues and verifies session challenges
type Authority struct {
	key    []byte
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewAuthority creates an Authority. Like route signing it fails closed
// without a key unless an ephemeral key is explicitly allowed.
func NewAuthority(key []byte, opts Options) (*Authority, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(key) == 0 {
		if !opts.AllowEphemeralKey {
			return nil, ErrNoSigningKey
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral session key: %w", err)
		}
		opts.Logger.Warn("session signing key not configured, using ephemeral key; challenges will not survive restarts")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Skew <= 0 {
		opts.Skew = DefaultSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Authority{
		key:    append([]byte(nil), key...),
		ttl:    opts.TTL,
		skew:   opts.Skew,
		now:    opts.Now,
		logger: opts.Logger,
	}, nil
}

// CreateChallenge issues a challenge for binding. host, when non-empty, is
// bound too and checked against the host presenting the proof.
func (a *Authority) CreateChallenge(b Binding, host string) (Challenge, error) {
	issued := a.now()
	p := Payload{
		SessionID:     b.SessionID,
		SourceAddress: strings.ToLower(b.SourceAddress),
		SolanaAddress: b.SolanaAddress,
		Provider:      b.Provider,
		RouteID:       b.RouteID,
		Nonce:         uuid.NewString(),
		IssuedAt:      issued.UnixMilli(),
		ExpiresAt:     issued.Add(a.ttl).UnixMilli(),
		Host:          strings.ToLower(host),
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return Challenge{}, fmt.Errorf("failed to encode challenge: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(raw) + "." + base64.RawURLEncoding.EncodeToString(a.mac(raw))
	return Challenge{Token: token, Message: Message(p), ExpiresAt: p.ExpiresAt}, nil
}

// Message renders the human-readable text the wallet signs
func Message(p Payload) string {
	var sb strings.Builder
	sb.WriteString("Authorize solbridge transfer session\n\n")
	fmt.Fprintf(&sb, "Session: %s\n", p.SessionID)
	fmt.Fprintf(&sb, "Source wallet: %s\n", p.SourceAddress)
	fmt.Fprintf(&sb, "Solana wallet: %s\n", p.SolanaAddress)
	fmt.Fprintf(&sb, "Provider: %s\n", p.Provider)
	fmt.Fprintf(&sb, "Route: %s\n", p.RouteID)
	if p.Host != "" {
		fmt.Fprintf(&sb, "Host: %s\n", p.Host)
	}
	fmt.Fprintf(&sb, "Nonce: %s\n", p.Nonce)
	fmt.Fprintf(&sb, "Issued at: %s\n", time.UnixMilli(p.IssuedAt).UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Expires at: %s", time.UnixMilli(p.ExpiresAt).UTC().Format(time.RFC3339))
	return sb.String()
}

// VerifyProof checks a proof against the session it is presented for.
// Every rejection wraps ErrUnauthorized.
func (a *Authority) VerifyProof(proof Proof, b Binding, host string) error {
	p, err := a.decode(proof.Token)
	if err != nil {
		return err
	}

	now := a.now().UnixMilli()
	if now > p.ExpiresAt {
		return ErrChallengeExpired
	}
	if p.IssuedAt > now+a.skew.Milliseconds() {
		return ErrIssuedInFuture
	}

	if p.SessionID != b.SessionID {
		return ErrSessionMismatch
	}
	if p.SourceAddress != strings.ToLower(b.SourceAddress) ||
		p.SolanaAddress != b.SolanaAddress ||
		p.Provider != b.Provider ||
		p.RouteID != b.RouteID {
		return ErrBindingMismatch
	}
	if p.Host != "" && host != "" && !strings.EqualFold(p.Host, host) {
		return ErrHostMismatch
	}

	if proof.Message != Message(p) {
		return ErrMessageMismatch
	}

	signer, err := RecoverAddress(proof.Message, proof.Signature)
	if err != nil {
		return newAuthError(ReasonBadSignature, err.Error())
	}
	if !strings.EqualFold(signer.Hex(), p.SourceAddress) {
		return ErrSignerMismatch
	}
	return nil
}

func (a *Authority) decode(token string) (Payload, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Payload{}, ErrMalformedChallenge
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Payload{}, ErrMalformedChallenge
	}
	mac, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return Payload{}, ErrMalformedChallenge
	}
	if !hmac.Equal(mac, a.mac(raw)) {
		return Payload{}, ErrTampered
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, ErrMalformedChallenge
	}
	return p, nil
}

func (a *Authority) mac(raw []byte) []byte {
	h := hmac.New(sha256.New, a.key)
	h.Write(raw)
	return h.Sum(nil)
}

// RecoverAddress returns the address that produced an EIP-191
// personal_sign signature over message.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignMessage produces an EIP-191 personal_sign signature the way wallets
// do, with a 27/28 recovery id.
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
