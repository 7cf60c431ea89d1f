package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MintLedgerRepo records every transaction a mint was authorized for, keyed
// (provider, transaction_id). Reservation is an atomic check-and-set; a lost
// reservation means the purchase was already redeemed.
//
// Expected schema:
//
//	CREATE TABLE mint_ledger (
//	    provider       TEXT        NOT NULL,
//	    transaction_id TEXT        NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (provider, transaction_id)
//	);
type MintLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewMintLedgerRepo(pool *pgxpool.Pool) *MintLedgerRepo {
	return &MintLedgerRepo{pool: pool}
}

// Reserve returns true when this call won the durable reservation.
func (r *MintLedgerRepo) Reserve(ctx context.Context, provider, transactionID string) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	transactionID = strings.TrimSpace(transactionID)
	if provider == "" || transactionID == "" {
		return false, fmt.Errorf("invalid mint ledger payload")
	}

	tag, err := r.pool.Exec(ctx, `
INSERT INTO mint_ledger (provider, transaction_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (provider, transaction_id) DO NOTHING
`, provider, transactionID)
	if err != nil {
		return false, fmt.Errorf("reserve mint ledger entry: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
