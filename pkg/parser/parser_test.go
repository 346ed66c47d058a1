package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbridge/pkg/types"
)

const (
	evmAddress    = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	solanaAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	wsolMint      = "So11111111111111111111111111111111111111112"
)

func validIntent() types.TransferIntent {
	return types.TransferIntent{
		SourceChainID:    "1",
		SourceChainKind:  types.ChainEVM,
		SourceToken:      "native",
		SourceAmount:     "1000000000000000000",
		DestinationToken: wsolMint,
		SourceAddress:    evmAddress,
		SolanaAddress:    solanaAddress,
		SlippagePercent:  "0.5",
	}
}

func TestParseQuoteCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *QuoteCommand
		wantErr bool
	}{
		{
			name:  "with prefix",
			input: "quote 2500000 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48 to USDC",
			want:  &QuoteCommand{Amount: "2500000", SourceToken: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", DestinationToken: "USDC"},
		},
		{
			name:  "keeps mint case",
			input: "  1000 native TO " + wsolMint,
			want:  &QuoteCommand{Amount: "1000", SourceToken: "native", DestinationToken: wsolMint},
		},
		{name: "decimal amount", input: "quote 1.5 native to SOL", wantErr: true},
		{name: "missing destination", input: "quote 100 native to", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuoteCommand(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateIntent(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		intent := validIntent()
		assert.NoError(t, ValidateIntent(&intent))

		intent.DestinationToken = "USDC"
		assert.NoError(t, ValidateIntent(&intent))
	})

	tests := []struct {
		name   string
		mutate func(*types.TransferIntent)
		field  string
	}{
		{"missing chain id", func(i *types.TransferIntent) { i.SourceChainID = "" }, "sourceChainId"},
		{"non numeric evm chain", func(i *types.TransferIntent) { i.SourceChainID = "mainnet" }, "sourceChainId"},
		{"unknown chain kind", func(i *types.TransferIntent) { i.SourceChainKind = "tron" }, "sourceChainType"},
		{"bad token", func(i *types.TransferIntent) { i.SourceToken = "usdc" }, "sourceToken"},
		{"zero amount", func(i *types.TransferIntent) { i.SourceAmount = "000" }, "sourceAmount"},
		{"decimal amount", func(i *types.TransferIntent) { i.SourceAmount = "1.5" }, "sourceAmount"},
		{"bad destination", func(i *types.TransferIntent) { i.DestinationToken = "not-a-mint!" }, "destinationToken"},
		{"bad source address", func(i *types.TransferIntent) { i.SourceAddress = "alice" }, "sourceAddress"},
		{"bad solana address", func(i *types.TransferIntent) { i.SolanaAddress = evmAddress }, "solanaAddress"},
		{"slippage too high", func(i *types.TransferIntent) { i.SlippagePercent = "51" }, "slippage"},
		{"negative slippage", func(i *types.TransferIntent) { i.SlippagePercent = "-1" }, "slippage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := validIntent()
			tt.mutate(&intent)

			err := ValidateIntent(&intent)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestValidateIntent_ReportsEveryField(t *testing.T) {
	err := ValidateIntent(&types.TransferIntent{})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"sourceChainId", "sourceChainType", "sourceToken", "sourceAmount", "destinationToken", "sourceAddress", "solanaAddress"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.Contains(t, err.Error(), "destinationToken: is required")
}

func TestNormalizeIntent(t *testing.T) {
	intent := types.TransferIntent{
		SourceChainID:    " 1 ",
		SourceToken:      "0x0000000000000000000000000000000000000000",
		SourceAmount:     " 100 ",
		DestinationToken: " SOL ",
		SolanaAddress:    " " + solanaAddress,
	}

	got := NormalizeIntent(intent)
	assert.Equal(t, types.ChainID("1"), got.SourceChainID)
	assert.Equal(t, types.NativeToken, got.SourceToken)
	assert.Equal(t, "100", got.SourceAmount)
	assert.Equal(t, "SOL", got.DestinationToken)
	assert.Equal(t, solanaAddress, got.SolanaAddress)
	assert.Equal(t, DefaultSlippage, got.SlippagePercent)
	assert.Equal(t, " 100 ", intent.SourceAmount)
}

func TestNormalizeTokenSymbol(t *testing.T) {
	assert.Equal(t, "SOL", NormalizeTokenSymbol(" wsol "))
	assert.Equal(t, "USDC", NormalizeTokenSymbol("usdc"))
}
