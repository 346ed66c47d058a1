package integrity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbridge/pkg/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSigner(t *testing.T) (*Signer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewSigner([]byte("test-route-signing-secret"), Options{Now: clock.Now})
	require.NoError(t, err)
	return s, clock
}

func testIntent() types.TransferIntent {
	return types.TransferIntent{
		SourceChainID:    "1",
		SourceChainKind:  types.ChainEVM,
		SourceToken:      types.NativeToken,
		SourceAmount:     "1000000000000000000",
		DestinationToken: "So11111111111111111111111111111111111111112",
		SourceAddress:    "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
		SolanaAddress:    "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		SlippagePercent:  "0.5",
	}
}

func testRoute() types.NormalizedRoute {
	return types.NormalizedRoute{
		Provider: "lifi",
		RouteID:  "route-1",
		Steps: []types.RouteStep{{
			ChainKind:   types.ChainEVM,
			ChainID:     "1",
			Provider:    "lifi",
			Description: "Bridge to Solana via Mayan",
		}},
		EstimatedOutput:  types.TokenAmount{Token: "So11111111111111111111111111111111111111112", Amount: "15000000000"},
		Fees:             []types.TokenAmount{{Token: types.NativeToken, Amount: "1000000000000000"}},
		EstimatedSeconds: types.Seconds(60),
	}
}

func TestNewSigner_FailsClosed(t *testing.T) {
	_, err := NewSigner(nil, Options{})
	assert.ErrorIs(t, err, ErrNoSigningKey)

	s, err := NewSigner(nil, Options{AllowEphemeralKey: true})
	require.NoError(t, err)

	signed, err := s.Sign(testRoute(), testIntent(), DefaultQuoteTTL)
	require.NoError(t, err)
	assert.NoError(t, s.Verify(signed, testIntent()))
}

func TestSignVerify(t *testing.T) {
	s, clock := newTestSigner(t)
	intent := testIntent()

	signed, err := s.Sign(testRoute(), intent, DefaultQuoteTTL)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Signature)
	assert.Equal(t, clock.now.UnixMilli(), signed.Timestamp)
	assert.Equal(t, clock.now.Add(10*time.Minute).UnixMilli(), signed.ExpiresAt)

	require.NoError(t, s.Verify(signed, intent))

	clock.Advance(DefaultQuoteTTL)
	assert.NoError(t, s.Verify(signed, intent), "valid up to and including the expiry instant")

	clock.Advance(time.Millisecond)
	err = s.Verify(signed, intent)
	assert.ErrorIs(t, err, ErrExpired)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestVerify_ContextMismatch(t *testing.T) {
	s, _ := newTestSigner(t)
	intent := testIntent()

	signed, err := s.Sign(testRoute(), intent, DefaultQuoteTTL)
	require.NoError(t, err)

	mutations := map[string]func(*types.TransferIntent){
		"amount":      func(i *types.TransferIntent) { i.SourceAmount = "2000000000000000000" },
		"chain":       func(i *types.TransferIntent) { i.SourceChainID = "8453" },
		"token":       func(i *types.TransferIntent) { i.SourceToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48" },
		"destination": func(i *types.TransferIntent) { i.DestinationToken = "EPjFWJd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" },
		"wallet":      func(i *types.TransferIntent) { i.SourceAddress = "0x1111111111111111111111111111111111111111" },
		"recipient":   func(i *types.TransferIntent) { i.SolanaAddress = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU" },
		"slippage":    func(i *types.TransferIntent) { i.SlippagePercent = "1" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := testIntent()
			mutate(&changed)
			assert.ErrorIs(t, s.Verify(signed, changed), ErrContextMismatch)
		})
	}
}

func TestVerify_NormalizesAddressCase(t *testing.T) {
	s, _ := newTestSigner(t)
	intent := testIntent()

	signed, err := s.Sign(testRoute(), intent, DefaultQuoteTTL)
	require.NoError(t, err)

	lower := intent
	lower.SourceAddress = "0xabcdef0123456789abcdef0123456789abcdef01"
	lower.SlippagePercent = "0.50"
	assert.NoError(t, s.Verify(signed, lower))
}

func TestVerify_RouteTampering(t *testing.T) {
	s, _ := newTestSigner(t)
	intent := testIntent()

	signed, err := s.Sign(testRoute(), intent, DefaultQuoteTTL)
	require.NoError(t, err)

	tampered := signed
	tampered.NormalizedRoute = signed.Clone()
	tampered.EstimatedOutput.Amount = "99000000000"
	assert.ErrorIs(t, s.Verify(tampered, intent), ErrContextMismatch)

	tampered = signed
	tampered.NormalizedRoute = signed.Clone()
	tampered.Steps[0].Description = "something else"
	assert.ErrorIs(t, s.Verify(tampered, intent), ErrContextMismatch)

	tampered = signed
	tampered.ExpiresAt += int64(time.Hour / time.Millisecond)
	assert.ErrorIs(t, s.Verify(tampered, intent), ErrContextMismatch)

	tampered = signed
	tampered.Signature = "zz"
	assert.ErrorIs(t, s.Verify(tampered, intent), ErrContextMismatch)

	tampered = signed
	tampered.Signature = signed.Signature[:10]
	assert.ErrorIs(t, s.Verify(tampered, intent), ErrContextMismatch)

	// Warnings are not part of the signed content
	annotated := signed
	annotated.NormalizedRoute = signed.Clone()
	annotated.Warnings = []string{"high price impact"}
	assert.NoError(t, s.Verify(annotated, intent))
}

func TestVerify_NotSigned(t *testing.T) {
	s, _ := newTestSigner(t)

	err := s.Verify(types.SignedRoute{NormalizedRoute: testRoute()}, testIntent())
	assert.ErrorIs(t, err, ErrNotSigned)
}

func TestVerify_DifferentKey(t *testing.T) {
	s, clock := newTestSigner(t)
	other, err := NewSigner([]byte("another-secret"), Options{Now: clock.Now})
	require.NoError(t, err)

	signed, err := s.Sign(testRoute(), testIntent(), DefaultQuoteTTL)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify(signed, testIntent()), ErrContextMismatch)
}

func TestSign_Idempotent(t *testing.T) {
	s, _ := newTestSigner(t)
	intent := testIntent()

	first, err := s.Sign(testRoute(), intent, DefaultQuoteTTL)
	require.NoError(t, err)
	second, err := s.Sign(testRoute(), intent, DefaultQuoteTTL)
	require.NoError(t, err)

	assert.Equal(t, first.Signature, second.Signature)
	assert.NoError(t, s.Verify(first, intent))
	assert.NoError(t, s.Verify(second, intent))

	// Re-signing an already signed route ignores the old signature fields
	resigned, err := s.Sign(first.NormalizedRoute, intent, DefaultQuoteTTL)
	require.NoError(t, err)
	assert.Equal(t, first.Signature, resigned.Signature)
}

func TestValidateForExecution(t *testing.T) {
	s, _ := newTestSigner(t)
	intent := testIntent()

	sign := func(route types.NormalizedRoute) types.SignedRoute {
		signed, err := s.Sign(route, intent, DefaultQuoteTTL)
		require.NoError(t, err)
		return signed
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, s.ValidateForExecution(sign(testRoute()), intent))
	})

	t.Run("unknown provider", func(t *testing.T) {
		route := testRoute()
		route.Provider = "shadybridge"
		assert.ErrorIs(t, s.ValidateForExecution(sign(route), intent), ErrUnknownProvider)
	})

	t.Run("output above 1000x input", func(t *testing.T) {
		route := testRoute()
		route.EstimatedOutput.Amount = "1000000000000000000001"
		err := s.ValidateForExecution(sign(route), intent)
		assert.ErrorIs(t, err, ErrAmountSanity)
	})

	t.Run("output at 1000x input", func(t *testing.T) {
		route := testRoute()
		route.EstimatedOutput.Amount = "1000000000000000000000"
		assert.NoError(t, s.ValidateForExecution(sign(route), intent))
	})

	t.Run("negative output", func(t *testing.T) {
		route := testRoute()
		route.EstimatedOutput.Amount = "-1"
		assert.ErrorIs(t, s.ValidateForExecution(sign(route), intent), ErrAmountSanity)
	})

	t.Run("fees exceed input", func(t *testing.T) {
		route := testRoute()
		route.Fees = []types.TokenAmount{
			{Token: types.NativeToken, Amount: "600000000000000000"},
			{Token: types.NativeToken, Amount: "600000000000000000"},
		}
		assert.ErrorIs(t, s.ValidateForExecution(sign(route), intent), ErrAmountSanity)
	})

	t.Run("fees in other tokens are not compared", func(t *testing.T) {
		route := testRoute()
		route.Fees = []types.TokenAmount{{Token: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Amount: "5000000000000000000"}}
		assert.NoError(t, s.ValidateForExecution(sign(route), intent))
	})

	t.Run("no steps", func(t *testing.T) {
		route := testRoute()
		route.Steps = nil
		assert.ErrorIs(t, s.ValidateForExecution(sign(route), intent), ErrInvalidSteps)
	})

	t.Run("unsupported chain kind", func(t *testing.T) {
		route := testRoute()
		route.Steps[0].ChainKind = "near"
		assert.ErrorIs(t, s.ValidateForExecution(sign(route), intent), ErrInvalidSteps)
	})

	t.Run("tampered", func(t *testing.T) {
		signed := sign(testRoute())
		signed.RouteID = "route-2"
		err := s.ValidateForExecution(signed, intent)
		assert.ErrorIs(t, err, ErrContextMismatch)
		assert.True(t, errors.Is(err, ErrIntegrity))
	})
}

func TestContextFingerprint(t *testing.T) {
	a := testIntent()
	b := testIntent()
	b.SourceAmount = "0001000000000000000000"
	b.SourceToken = "NATIVE"

	assert.Equal(t, ContextFingerprint(a), ContextFingerprint(b))
	assert.Len(t, ContextFingerprint(a), 64)

	b.SolanaAddress = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	assert.NotEqual(t, ContextFingerprint(a), ContextFingerprint(b))
}

func TestCanonicalRoute_FieldOrderIndependent(t *testing.T) {
	route := testRoute()
	route.Warnings = []string{"a"}

	first, err := CanonicalRoute(route)
	require.NoError(t, err)

	route.Warnings = nil
	second, err := CanonicalRoute(route)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.NotContains(t, string(first), "_signature")
}
