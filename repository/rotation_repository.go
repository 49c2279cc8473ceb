package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/keyturn/go-keyturn-server/types"
)

// RotationRepository implements RotationLedger over postgres.
// One row per rotation attempt, rows are never deleted.
type RotationRepository struct {
	db PgQuerier
}

func NewRotationRepository(db PgQuerier) *RotationRepository {
	if db == nil {
		panic("db cannot be nil")
	}
	return &RotationRepository{db: db}
}

// Insert stores a freshly started pending ticket
func (r *RotationRepository) Insert(ctx context.Context, ticket *types.RotationTicket) error {
	const q = `
INSERT INTO rotation_tickets (rotation_id, owner, old_signing_public_key, status, started_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, q,
		ticket.RotationID, ticket.Owner, ticket.OldSigningPublicKey, ticket.Status, ticket.StartedAt)
	return handleError(err)
}

// Get returns a ticket by its rotation id, types.ErrNotFound when absent
func (r *RotationRepository) Get(ctx context.Context, rotationID string) (*types.RotationTicket, error) {
	const q = `
SELECT rotation_id, owner, old_signing_public_key, new_signing_public_key,
       alias_strategy, alias_value, payment_strategy, payment_value,
       status, started_at, completed_at,
       prior_alias, prior_payment_address, attestation_refs, error_reason
FROM rotation_tickets
WHERE rotation_id = $1`

	var (
		t            types.RotationTicket
		completedAt  *time.Time
		priorAlias   *string
		priorPayment *string
		refsJSON     []byte
	)
	err := r.db.QueryRow(ctx, q, rotationID).Scan(
		&t.RotationID, &t.Owner, &t.OldSigningPublicKey, &t.NewSigningPublicKey,
		&t.AliasStrategy, &t.AliasValue, &t.PaymentStrategy, &t.PaymentValue,
		&t.Status, &t.StartedAt, &completedAt,
		&priorAlias, &priorPayment, &refsJSON, &t.ErrorReason)
	if err != nil {
		return nil, handleError(err)
	}
	t.CompletedAt = completedAt
	if priorAlias != nil || priorPayment != nil || len(refsJSON) > 0 {
		prior := &types.PriorState{}
		if priorAlias != nil {
			prior.Alias = *priorAlias
		}
		if priorPayment != nil {
			prior.PaymentAddress = *priorPayment
		}
		if len(refsJSON) > 0 {
			if uErr := json.Unmarshal(refsJSON, &prior.AttestationRefs); uErr != nil {
				return nil, uErr
			}
		}
		t.PriorState = prior
	}
	return &t, nil
}

// RecentActivity counts the owners tickets created since the given time
// and reports when the latest one was created (zero time when none)
func (r *RotationRepository) RecentActivity(ctx context.Context, owner string, since time.Time) (int, time.Time, error) {
	const q = `
SELECT COUNT(*), MAX(started_at)
FROM rotation_tickets
WHERE owner = $1 AND started_at >= $2`
	var (
		count int
		last  *time.Time
	)
	if err := r.db.QueryRow(ctx, q, owner, since).Scan(&count, &last); err != nil {
		return 0, time.Time{}, handleError(err)
	}
	if last == nil {
		return count, time.Time{}, nil
	}
	return count, *last, nil
}

// RecordError stores a commit failure reason on a ticket whose status
// transition did not go through
func (r *RotationRepository) RecordError(ctx context.Context, rotationID string, reason string) error {
	const q = `UPDATE rotation_tickets SET error_reason = $2 WHERE rotation_id = $1`
	_, err := r.db.Exec(ctx, q, rotationID, reason)
	return handleError(err)
}
