package integrity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solbridge/pkg/types"
)

// DefaultQuoteTTL is the lifetime of signatures on user-facing quotes
const DefaultQuoteTTL = 10 * time.Minute

// Options configures a Signer
type Options struct {
	// AllowEphemeralKey permits a random per-process key when no key is
	// configured. Only valid outside production.
	AllowEphemeralKey bool
	Logger            *zap.Logger
	Now               func() time.Time
}

// Signer binds routes to their request context and verifies the binding
type Signer struct {
	key    []byte
	now    func() time.Time
	logger *zap.Logger
}

// NewSigner creates a route signer. It fails closed: without a key and
// without AllowEphemeralKey no signer is created.
func NewSigner(key []byte, opts Options) (*Signer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(key) == 0 {
		if !opts.AllowEphemeralKey {
			return nil, ErrNoSigningKey
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral signing key: %w", err)
		}
		logger.Warn("route signing key not configured, using ephemeral key; signatures will not survive restarts")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Signer{
		key:    append([]byte(nil), key...),
		now:    now,
		logger: logger,
	}, nil
}

// Sign attaches a time-boxed signature binding the route to the intent
func (s *Signer) Sign(route types.NormalizedRoute, intent types.TransferIntent, ttl time.Duration) (types.SignedRoute, error) {
	if s == nil || len(s.key) == 0 {
		return types.SignedRoute{}, ErrNoSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}

	issuedAt := s.now().UnixMilli()
	expiresAt := issuedAt + ttl.Milliseconds()

	mac, err := s.mac(route, intent, issuedAt, expiresAt)
	if err != nil {
		return types.SignedRoute{}, err
	}

	return types.SignedRoute{
		NormalizedRoute: route,
		Signature:       hex.EncodeToString(mac),
		Timestamp:       issuedAt,
		ExpiresAt:       expiresAt,
	}, nil
}

// Verify checks that a signed route was issued for this intent, is
// unmodified and has not expired.
func (s *Signer) Verify(signed types.SignedRoute, intent types.TransferIntent) error {
	if signed.Signature == "" || signed.Timestamp == 0 || signed.ExpiresAt == 0 {
		return ErrNotSigned
	}

	if s.now().UnixMilli() > signed.ExpiresAt {
		return ErrExpired
	}

	provided, err := hex.DecodeString(signed.Signature)
	if err != nil {
		return ErrContextMismatch
	}

	expected, err := s.mac(signed.NormalizedRoute, intent, signed.Timestamp, signed.ExpiresAt)
	if err != nil {
		return err
	}

	// hmac.Equal returns false immediately for unequal lengths and is
	// constant time otherwise.
	if !hmac.Equal(expected, provided) {
		return ErrContextMismatch
	}

	return nil
}

func (s *Signer) mac(route types.NormalizedRoute, intent types.TransferIntent, issuedAt, expiresAt int64) ([]byte, error) {
	canonical, err := CanonicalRoute(route)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize route: %w", err)
	}

	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(ContextFingerprint(intent)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(issuedAt, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(expiresAt, 10)))
	h.Write([]byte{'|'})
	h.Write(canonical)
	return h.Sum(nil), nil
}
