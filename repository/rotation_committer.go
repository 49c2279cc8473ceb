package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyturn/go-keyturn-server/types"
)

// PgRotationCommitter implements RotationCommitter with a postgres
// transaction spanning the ticket row and the identity record. The
// conditional status flip is the serialization point: of two concurrent
// commits against the same ticket only one matches the WHERE clause,
// the other gets types.ErrConflict with nothing applied.
type PgRotationCommitter struct {
	pool *pgxpool.Pool
}

func NewPgRotationCommitter(pool *pgxpool.Pool) *PgRotationCommitter {
	if pool == nil {
		panic("pool cannot be nil")
	}
	return &PgRotationCommitter{pool: pool}
}

// CommitRotation flips the ticket pending -> completed, attaches the
// prior-state snapshot and writes the new identity values, as one unit
func (c *PgRotationCommitter) CommitRotation(ctx context.Context, commit CommitRotation) error {
	refsJSON, err := json.Marshal(commit.Prior.AttestationRefs)
	if err != nil {
		return err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const flip = `
UPDATE rotation_tickets
SET status = 'completed',
    new_signing_public_key = $2,
    alias_strategy = $3, alias_value = $4,
    payment_strategy = $5, payment_value = $6,
    completed_at = $7,
    prior_alias = $8, prior_payment_address = $9, attestation_refs = $10,
    error_reason = ''
WHERE rotation_id = $1 AND status = 'pending'`
	tag, err := tx.Exec(ctx, flip,
		commit.RotationID, commit.NewSigningPublicKey,
		commit.AliasStrategy, commit.AliasValue,
		commit.PaymentStrategy, commit.PaymentValue,
		time.Now().UTC(),
		commit.Prior.Alias, commit.Prior.PaymentAddress, refsJSON)
	if err != nil {
		return handleError(err)
	}
	if tag.RowsAffected() != 1 {
		return types.ErrConflict
	}

	alias := commit.Prior.Alias
	if commit.AliasStrategy == types.FieldStrategyCreate {
		alias = commit.AliasValue
	}
	payment := commit.Prior.PaymentAddress
	if commit.PaymentStrategy == types.FieldStrategyCreate {
		payment = commit.PaymentValue
	}

	const upsert = `
INSERT INTO identities (owner, signing_public_key, alias, payment_address, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (owner) DO UPDATE
SET signing_public_key = EXCLUDED.signing_public_key,
    alias = EXCLUDED.alias,
    payment_address = EXCLUDED.payment_address,
    updated_at = now()`
	if _, err := tx.Exec(ctx, upsert, commit.Owner, commit.NewSigningPublicKey, alias, payment); err != nil {
		return handleError(err)
	}

	return tx.Commit(ctx)
}

// CommitRollback flips the ticket completed -> rolled_back and restores
// the identity record from the prior-state snapshot, as one unit
func (c *PgRotationCommitter) CommitRollback(ctx context.Context, ticket *types.RotationTicket) error {
	if ticket.PriorState == nil {
		return types.ErrInternal
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const flip = `
UPDATE rotation_tickets
SET status = 'rolled_back', error_reason = ''
WHERE rotation_id = $1 AND status = 'completed'`
	tag, err := tx.Exec(ctx, flip, ticket.RotationID)
	if err != nil {
		return handleError(err)
	}
	if tag.RowsAffected() != 1 {
		return types.ErrConflict
	}

	const restore = `
INSERT INTO identities (owner, signing_public_key, alias, payment_address, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (owner) DO UPDATE
SET signing_public_key = EXCLUDED.signing_public_key,
    alias = EXCLUDED.alias,
    payment_address = EXCLUDED.payment_address,
    updated_at = now()`
	if _, err := tx.Exec(ctx, restore, ticket.Owner,
		ticket.OldSigningPublicKey, ticket.PriorState.Alias, ticket.PriorState.PaymentAddress); err != nil {
		return handleError(err)
	}

	return tx.Commit(ctx)
}
