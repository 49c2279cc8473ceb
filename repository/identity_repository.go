package repository

import (
	"context"

	"github.com/keyturn/go-keyturn-server/types"
)

// IdentityRepository implements IdentityReader over postgres
type IdentityRepository struct {
	db PgQuerier
}

func NewIdentityRepository(db PgQuerier) *IdentityRepository {
	if db == nil {
		panic("db cannot be nil")
	}
	return &IdentityRepository{db: db}
}

// Get returns the identity record for the owner, types.ErrNotFound when
// the owner never had one
func (r *IdentityRepository) Get(ctx context.Context, owner string) (*types.IdentityRecord, error) {
	const q = `
SELECT owner, signing_public_key, alias, payment_address, updated_at
FROM identities
WHERE owner = $1`
	var rec types.IdentityRecord
	err := r.db.QueryRow(ctx, q, owner).
		Scan(&rec.Owner, &rec.SigningPublicKey, &rec.Alias, &rec.PaymentAddress, &rec.UpdatedAt)
	if err != nil {
		return nil, handleError(err)
	}
	return &rec, nil
}
