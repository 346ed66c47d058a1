package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"solbridge/pkg/registry"
	"solbridge/pkg/types"
)

// TokenRegistry implements registry.Registry using PostgreSQL.
type TokenRegistry struct {
	pool *Pool
}

// NewTokenRegistry creates a new TokenRegistry.
func NewTokenRegistry(pool *Pool) *TokenRegistry {
	return &TokenRegistry{pool: pool}
}

// Compile-time interface check.
var _ registry.Registry = (*TokenRegistry)(nil)

const tokenColumns = `id, symbol, source_chain_id, source_token, solana_mint, decimals, official_bridge_url, swap_via_mint`

// Upsert inserts or replaces a project token keyed by id.
func (r *TokenRegistry) Upsert(ctx context.Context, t registry.ProjectToken) error {
	query := `
		INSERT INTO project_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			source_chain_id = EXCLUDED.source_chain_id,
			source_token = EXCLUDED.source_token,
			solana_mint = EXCLUDED.solana_mint,
			decimals = EXCLUDED.decimals,
			official_bridge_url = EXCLUDED.official_bridge_url,
			swap_via_mint = EXCLUDED.swap_via_mint,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		t.ID,
		t.Symbol,
		strings.ToLower(t.SourceChainID.String()),
		strings.ToLower(t.SourceToken),
		t.SolanaMint,
		t.Decimals,
		t.OfficialBridgeURL,
		t.SwapViaMint,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("upsert project token %s: source token already registered", t.ID)
		}
		return fmt.Errorf("upsert project token: %w", err)
	}
	return nil
}

// FindBySource implements registry.Registry. Token addresses match
// case-insensitively.
func (r *TokenRegistry) FindBySource(ctx context.Context, chainID types.ChainID, token string) (*registry.ProjectToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM project_tokens WHERE source_chain_id = $1 AND source_token = $2`
	row := r.pool.QueryRow(ctx, query,
		strings.ToLower(strings.TrimSpace(chainID.String())),
		strings.ToLower(strings.TrimSpace(token)))
	return scanToken(row, "find token by source")
}

// FindByMint implements registry.Registry.
func (r *TokenRegistry) FindByMint(ctx context.Context, mint string) (*registry.ProjectToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM project_tokens WHERE solana_mint = $1 ORDER BY id LIMIT 1`
	return scanToken(r.pool.QueryRow(ctx, query, mint), "find token by mint")
}

// List returns every registered token ordered by source chain and symbol.
func (r *TokenRegistry) List(ctx context.Context) ([]registry.ProjectToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM project_tokens ORDER BY source_chain_id, symbol, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list project tokens: %w", err)
	}
	defer rows.Close()

	var out []registry.ProjectToken
	for rows.Next() {
		t, err := scanToken(rows, "list project tokens")
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list project tokens: %w", err)
	}
	return out, nil
}

func scanToken(row pgx.Row, op string) (*registry.ProjectToken, error) {
	var (
		t       registry.ProjectToken
		chainID string
	)
	err := row.Scan(
		&t.ID,
		&t.Symbol,
		&chainID,
		&t.SourceToken,
		&t.SolanaMint,
		&t.Decimals,
		&t.OfficialBridgeURL,
		&t.SwapViaMint,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.SourceChainID = types.ChainID(chainID)
	return &t, nil
}
