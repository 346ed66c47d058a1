package sessionauth

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	auth    *Authority
	clock   *clock
	key     *ecdsa.PrivateKey
	binding Binding
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := &clock{now: time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)}
	auth, err := NewAuthority([]byte("challenge-secret"), Options{Now: c.Now})
	require.NoError(t, err)

	return &fixture{
		auth:  auth,
		clock: c,
		key:   key,
		binding: Binding{
			SessionID:     "3f0d6c1e-5b8a-4f7e-9d4c-2a1b0c9d8e7f",
			SourceAddress: crypto.PubkeyToAddress(key.PublicKey).Hex(),
			SolanaAddress: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
			Provider:      "lifi",
			RouteID:       "route-1",
		},
	}
}

func (f *fixture) prove(t *testing.T, ch Challenge) Proof {
	t.Helper()
	sig, err := SignMessage(f.key, ch.Message)
	require.NoError(t, err)
	return Proof{Token: ch.Token, Message: ch.Message, Signature: sig}
}

func TestNewAuthority_FailsClosed(t *testing.T) {
	_, err := NewAuthority(nil, Options{})
	assert.ErrorIs(t, err, ErrNoSigningKey)

	a, err := NewAuthority(nil, Options{AllowEphemeralKey: true})
	require.NoError(t, err)
	assert.Len(t, a.key, 32)
}

func TestChallengeRoundTrip(t *testing.T) {
	f := newFixture(t)

	ch, err := f.auth.CreateChallenge(f.binding, "app.example.org")
	require.NoError(t, err)
	assert.Equal(t, f.clock.now.Add(time.Hour).UnixMilli(), ch.ExpiresAt)
	assert.Contains(t, ch.Message, f.binding.SessionID)
	assert.Contains(t, ch.Message, strings.ToLower(f.binding.SourceAddress))
	assert.Contains(t, ch.Message, "Host: app.example.org")

	proof := f.prove(t, ch)
	require.NoError(t, f.auth.VerifyProof(proof, f.binding, "app.example.org"))
	require.NoError(t, f.auth.VerifyProof(proof, f.binding, ""), "host is only checked when present")
}

func TestChallenge_UniqueNonce(t *testing.T) {
	f := newFixture(t)
	a, err := f.auth.CreateChallenge(f.binding, "")
	require.NoError(t, err)
	b, err := f.auth.CreateChallenge(f.binding, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
	assert.NotEqual(t, a.Message, b.Message)
}

func TestMessage_Deterministic(t *testing.T) {
	p := Payload{
		SessionID: "s", SourceAddress: "0xabc", SolanaAddress: "dst", Provider: "lifi",
		RouteID: "r", Nonce: "n", IssuedAt: 1700000000000, ExpiresAt: 1700003600000,
	}
	assert.Equal(t, Message(p), Message(p))
	assert.NotContains(t, Message(p), "Host:")
	assert.Contains(t, Message(p), "Expires at: 2023-11-14T23:13:20Z")
}

func TestVerifyProof_SessionMismatch(t *testing.T) {
	f := newFixture(t)
	ch, err := f.auth.CreateChallenge(f.binding, "")
	require.NoError(t, err)
	proof := f.prove(t, ch)

	other := f.binding
	other.SessionID = "9a8b7c6d-0000-4000-8000-000000000000"

	err = f.auth.VerifyProof(proof, other, "")
	assert.ErrorIs(t, err, ErrSessionMismatch)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, ReasonSessionMismatch, ReasonOf(err))
}

func TestVerifyProof_Rejections(t *testing.T) {
	f := newFixture(t)
	ch, err := f.auth.CreateChallenge(f.binding, "app.example.org")
	require.NoError(t, err)
	valid := f.prove(t, ch)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		proof   func() Proof
		binding func(b Binding) Binding
		host    string
		advance time.Duration
		want    error
	}{
		{
			name:  "garbage token",
			proof: func() Proof { p := valid; p.Token = "not-a-token"; return p },
			want:  ErrMalformedChallenge,
		},
		{
			name: "tampered payload",
			proof: func() Proof {
				body, sig, _ := strings.Cut(valid.Token, ".")
				raw, _ := base64.RawURLEncoding.DecodeString(body)
				var p Payload
				_ = json.Unmarshal(raw, &p)
				p.RouteID = "route-2"
				raw, _ = json.Marshal(p)
				out := valid
				out.Token = base64.RawURLEncoding.EncodeToString(raw) + "." + sig
				return out
			},
			want: ErrTampered,
		},
		{
			name:    "expired",
			proof:   func() Proof { return valid },
			advance: time.Hour + time.Second,
			want:    ErrChallengeExpired,
		},
		{
			name:    "issued in the future",
			proof:   func() Proof { return valid },
			advance: -2 * time.Minute,
			want:    ErrIssuedInFuture,
		},
		{
			name:    "route mismatch",
			proof:   func() Proof { return valid },
			binding: func(b Binding) Binding { b.RouteID = "route-9"; return b },
			want:    ErrBindingMismatch,
		},
		{
			name:    "destination mismatch",
			proof:   func() Proof { return valid },
			binding: func(b Binding) Binding { b.SolanaAddress = "Other111111111111111111111111111111111111111"; return b },
			want:    ErrBindingMismatch,
		},
		{
			name:  "host mismatch",
			proof: func() Proof { return valid },
			host:  "evil.example.org",
			want:  ErrHostMismatch,
		},
		{
			name: "substituted message",
			proof: func() Proof {
				msg := strings.Replace(valid.Message, "Provider: lifi", "Provider: anything", 1)
				sig, err := SignMessage(f.key, msg)
				require.NoError(t, err)
				return Proof{Token: valid.Token, Message: msg, Signature: sig}
			},
			want: ErrMessageMismatch,
		},
		{
			name:  "bad signature encoding",
			proof: func() Proof { p := valid; p.Signature = "0x1234"; return p },
			want:  ErrBadSignature,
		},
		{
			name: "wrong signer",
			proof: func() Proof {
				sig, err := SignMessage(otherKey, valid.Message)
				require.NoError(t, err)
				return Proof{Token: valid.Token, Message: valid.Message, Signature: sig}
			},
			want: ErrSignerMismatch,
		},
	}

	start := f.clock.now
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.now = start.Add(tt.advance)
			defer func() { f.clock.now = start }()

			b := f.binding
			if tt.binding != nil {
				b = tt.binding(b)
			}
			host := tt.host
			if host == "" {
				host = "app.example.org"
			}

			err := f.auth.VerifyProof(tt.proof(), b, host)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVerifyProof_WithinSkew(t *testing.T) {
	f := newFixture(t)
	ch, err := f.auth.CreateChallenge(f.binding, "")
	require.NoError(t, err)
	proof := f.prove(t, ch)

	f.clock.now = f.clock.now.Add(-30 * time.Second)
	assert.NoError(t, f.auth.VerifyProof(proof, f.binding, ""))
}

func TestVerifyProof_DifferentAuthorityKey(t *testing.T) {
	f := newFixture(t)
	ch, err := f.auth.CreateChallenge(f.binding, "")
	require.NoError(t, err)

	other, err := NewAuthority([]byte("another-secret"), Options{Now: f.clock.Now})
	require.NoError(t, err)
	assert.ErrorIs(t, other.VerifyProof(f.prove(t, ch), f.binding, ""), ErrTampered)
}

func TestRecoverAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := SignMessage(key, "hello")
	require.NoError(t, err)

	addr, err := RecoverAddress("hello", sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)

	other, err := RecoverAddress("hello!", sig)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)
}
