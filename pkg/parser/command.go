package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// QuoteCommand is the parsed form of a quote command line
type QuoteCommand struct {
	Amount           string
	SourceToken      string
	DestinationToken string
}

var quotePattern = regexp.MustCompile(`^(\d+)\s+(\S+)\s+TO\s+(\S+)$`)

// ParseQuoteCommand parses a quote command of the form
// "<amount> <source-token> to <destination-token>".
// Examples:
//   - "1000000000000000000 native to So11111111111111111111111111111111111111112"
//   - "quote 2500000 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48 to USDC"
//
// The amount is an integer in the source token's smallest unit.
func ParseQuoteCommand(command string) (*QuoteCommand, error) {
	command = strings.TrimSpace(command)

	// Remove the word "quote" if present at the beginning
	if len(command) >= 6 && strings.EqualFold(command[:6], "quote ") {
		command = strings.TrimSpace(command[6:])
	}

	// Match case-insensitively on the keyword but keep token case:
	// Solana mints are case sensitive.
	fields := strings.Fields(command)
	for i, f := range fields {
		if strings.EqualFold(f, "to") {
			fields[i] = "TO"
		}
	}
	matches := quotePattern.FindStringSubmatch(strings.Join(fields, " "))
	if matches == nil {
		return nil, fmt.Errorf("invalid quote command format. Expected: 'quote <amount> <token> to <token>' (e.g., 'quote 1000000 native to SOL')")
	}

	return &QuoteCommand{
		Amount:           matches[1],
		SourceToken:      matches[2],
		DestinationToken: matches[3],
	}, nil
}

// ValidationError reports field-level problems with a request
type ValidationError struct {
	Fields map[string]string
}

// Error implements error
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"WSOL": "SOL",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
