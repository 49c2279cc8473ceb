package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log/level"

	"github.com/keyturn/go-keyturn-server/global"
	"github.com/keyturn/go-keyturn-server/repository"
	"github.com/keyturn/go-keyturn-server/types"
	"github.com/keyturn/go-keyturn-server/util"
)

// RotationService drives the key-rotation protocol: start, complete,
// status and rollback over the rotation ledger, with all identity
// mutations delegated to the atomic committer.
type RotationService struct {
	identity  *IdentityService
	ledger    repository.RotationLedger
	committer repository.RotationCommitter
	limits    *RotationLimitService
	domains   *DomainService
}

func NewRotationService(
	identity *IdentityService,
	ledger repository.RotationLedger,
	committer repository.RotationCommitter,
	limits *RotationLimitService,
	domains *DomainService,
) *RotationService {
	if identity == nil || ledger == nil || committer == nil || limits == nil || domains == nil {
		panic("rotation service dependencies cannot be nil")
	}
	return &RotationService{
		identity:  identity,
		ledger:    ledger,
		committer: committer,
		limits:    limits,
		domains:   domains,
	}
}

// Start opens a new rotation for the owner: snapshots the current
// identity, writes a pending ticket and returns the handle together with
// the policy constraints the client needs before committing.
func (rs *RotationService) Start(owner string) (*types.OutputStartRotation, error) {
	if owner == "" {
		return nil, types.ErrBadRequest
	}
	if err := rs.limits.Allow(owner); err != nil {
		return nil, err
	}

	snapshot, err := rs.identity.Snapshot(owner)
	if err != nil {
		level.Error(global.Logger).Log("RotationService.Start", "snapshot read failed", "error", err.Error())
		return nil, types.ErrInternal
	}

	ticket := &types.RotationTicket{
		RotationID:          util.GenerateRotationID(),
		Owner:               owner,
		OldSigningPublicKey: snapshot.SigningPublicKey,
		Status:              types.RotationStatusPending,
		StartedAt:           time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := rs.ledger.Insert(ctx, ticket); err != nil {
		level.Error(global.Logger).Log("RotationService.Start", "ticket insert failed", "error", err.Error())
		return nil, types.ErrInternal
	}

	return &types.OutputStartRotation{
		RotationID:              ticket.RotationID,
		CurrentIdentitySnapshot: *snapshot,
		AliasAllowlist:          rs.domains.AllowedDomains(),
		DeprecationWindowDays:   global.Conf.Rotation.DeprecationWindowDays,
	}, nil
}

// Complete commits a pending rotation: validates the claimed old key and
// the alias namespace, captures the rollback baseline and invokes the
// atomic committer. A failed commit leaves the ticket pending and is safe
// to retry.
func (rs *RotationService) Complete(owner string, input *types.InputCompleteRotation) error {
	ticket, err := rs.getOwnedTicket(owner, input.RotationID)
	if err != nil {
		return err
	}
	if ticket.Status != types.RotationStatusPending {
		return types.ErrConflict
	}

	// public keys, so constant time is hygiene rather than necessity
	if !util.ConstantTimeEqual(input.OldKey, ticket.OldSigningPublicKey) {
		return types.ErrKeyMismatch
	}
	if !util.IsEd25519PublicKey(input.NewKey) {
		return types.ErrInvalidPublicKey
	}

	aliasStrategy, aliasValue := types.FieldStrategyKeep, ""
	if input.Alias != nil {
		aliasStrategy = input.Alias.Strategy
		aliasValue = input.Alias.Value
	}
	if aliasStrategy == types.FieldStrategyCreate {
		domain, dErr := util.AliasDomain(aliasValue)
		if dErr != nil {
			return types.ErrBadRequest
		}
		if !rs.domains.IsAllowed(domain) {
			return types.ErrDomainNotAllowed
		}
	}

	paymentStrategy, paymentValue := types.FieldStrategyKeep, ""
	if input.PaymentAddress != nil {
		paymentStrategy = input.PaymentAddress.Strategy
		paymentValue = input.PaymentAddress.Value
	}
	if paymentStrategy == types.FieldStrategyCreate && paymentValue == "" {
		return types.ErrBadRequest
	}

	// rollback baseline: alias and payment address as they exist right now
	snapshot, err := rs.identity.Snapshot(owner)
	if err != nil {
		level.Error(global.Logger).Log("RotationService.Complete", "snapshot read failed", "error", err.Error())
		return types.ErrInternal
	}

	commit := repository.CommitRotation{
		RotationID:          ticket.RotationID,
		Owner:               owner,
		OldSigningPublicKey: ticket.OldSigningPublicKey,
		NewSigningPublicKey: input.NewKey,
		AliasStrategy:       aliasStrategy,
		AliasValue:          aliasValue,
		PaymentStrategy:     paymentStrategy,
		PaymentValue:        paymentValue,
		Prior: types.PriorState{
			Alias:           snapshot.Alias,
			PaymentAddress:  snapshot.PaymentAddress,
			AttestationRefs: input.AttestationRefs,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := rs.committer.CommitRotation(ctx, commit); err != nil {
		if errors.Is(err, types.ErrConflict) {
			// lost the race against another complete on the same ticket
			return types.ErrConflict
		}
		level.Error(global.Logger).Log("RotationService.Complete", "commit failed", "rotationId", ticket.RotationID, "error", err.Error())
		rs.recordError(ticket.RotationID, "rotation commit failed")
		return types.ErrInternal
	}
	return nil
}

// Status returns the callers ticket. Tickets of other owners read as
// not found, never as forbidden.
func (rs *RotationService) Status(owner, rotationID string) (*types.RotationTicket, error) {
	return rs.getOwnedTicket(owner, rotationID)
}

// Rollback undoes a completed rotation within the deprecation window,
// restoring the identity from the prior-state snapshot captured at
// complete time.
func (rs *RotationService) Rollback(owner, rotationID string) error {
	ticket, err := rs.getOwnedTicket(owner, rotationID)
	if err != nil {
		return err
	}
	if ticket.Status != types.RotationStatusCompleted {
		return types.ErrConflict
	}
	if ticket.CompletedAt == nil || ticket.PriorState == nil {
		level.Error(global.Logger).Log("RotationService.Rollback", "completed ticket missing snapshot", "rotationId", rotationID)
		return types.ErrInternal
	}

	window := time.Duration(global.Conf.Rotation.DeprecationWindowDays) * 24 * time.Hour
	if time.Now().UTC().After(ticket.CompletedAt.Add(window)) {
		return types.ErrWindowExpired
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := rs.committer.CommitRollback(ctx, ticket); err != nil {
		if errors.Is(err, types.ErrConflict) {
			return types.ErrConflict
		}
		level.Error(global.Logger).Log("RotationService.Rollback", "commit failed", "rotationId", rotationID, "error", err.Error())
		rs.recordError(rotationID, "rollback commit failed")
		return types.ErrInternal
	}
	return nil
}

func (rs *RotationService) getOwnedTicket(owner, rotationID string) (*types.RotationTicket, error) {
	if owner == "" || rotationID == "" {
		return nil, types.ErrBadRequest
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	ticket, err := rs.ledger.Get(ctx, rotationID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrNotFound
		}
		level.Error(global.Logger).Log("RotationService", "ticket read failed", "error", err.Error())
		return nil, types.ErrInternal
	}
	if ticket.Owner != owner {
		// cross-owner lookups must not reveal the ticket exists
		return nil, types.ErrNotFound
	}
	return ticket, nil
}

func (rs *RotationService) recordError(rotationID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := rs.ledger.RecordError(ctx, rotationID, reason); err != nil {
		level.Error(global.Logger).Log("RotationService", "failed to record ticket error", "rotationId", rotationID, "error", err.Error())
	}
}
