package services

import (
	"context"
	"errors"
	"time"

	"github.com/keyturn/go-keyturn-server/repository"
	"github.com/keyturn/go-keyturn-server/types"
)

// IdentityService reads identity records. No side effects; all identity
// writes go through the rotation committer.
type IdentityService struct {
	identityRepo repository.IdentityReader
}

func NewIdentityService(identityRepo repository.IdentityReader) *IdentityService {
	if identityRepo == nil {
		panic("identityRepo cannot be nil")
	}
	return &IdentityService{identityRepo: identityRepo}
}

// Get returns the identity record for the owner
func (is *IdentityService) Get(owner string) (*types.IdentityRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	return is.identityRepo.Get(ctx, owner)
}

// Snapshot returns the current identity fields for the owner. An owner
// without a record yet gets an empty snapshot, not an error.
func (is *IdentityService) Snapshot(owner string) (*types.IdentitySnapshot, error) {
	rec, err := is.Get(owner)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return &types.IdentitySnapshot{}, nil
		}
		return nil, err
	}
	return &types.IdentitySnapshot{
		SigningPublicKey: rec.SigningPublicKey,
		Alias:            rec.Alias,
		PaymentAddress:   rec.PaymentAddress,
	}, nil
}
