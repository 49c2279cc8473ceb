package repository

import (
	"context"
	"time"

	"github.com/keyturn/go-keyturn-server/types"
)

// IdentityReader reads the current identity record for an owner.
// Leaf dependency, no side effects.
type IdentityReader interface {
	Get(ctx context.Context, owner string) (*types.IdentityRecord, error)
}

// RotationLedger is the append-mostly system of record for rotation tickets.
// Status transitions happen only through the RotationCommitter.
type RotationLedger interface {
	Insert(ctx context.Context, ticket *types.RotationTicket) error
	Get(ctx context.Context, rotationID string) (*types.RotationTicket, error)
	// RecentActivity returns how many tickets the owner created since the
	// given time and when the most recent one was created.
	RecentActivity(ctx context.Context, owner string, since time.Time) (int, time.Time, error)
	// RecordError stores a failure reason on a ticket without touching its status
	RecordError(ctx context.Context, rotationID string, reason string) error
}

// CommitRotation is the full input of an atomic rotation commit.
// Keep strategies resolve against the Prior snapshot.
type CommitRotation struct {
	RotationID          string
	Owner               string
	OldSigningPublicKey string
	NewSigningPublicKey string
	AliasStrategy       types.FieldStrategy
	AliasValue          string
	PaymentStrategy     types.FieldStrategy
	PaymentValue        string
	Prior               types.PriorState
}

// RotationCommitter is the only component allowed to mutate an identity
// record and flip its ticket status, all-or-nothing. A commit against a
// ticket that is no longer in the required status returns types.ErrConflict
// and leaves everything untouched.
type RotationCommitter interface {
	CommitRotation(ctx context.Context, commit CommitRotation) error
	CommitRollback(ctx context.Context, ticket *types.RotationTicket) error
}
