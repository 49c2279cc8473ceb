package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keyturn/go-keyturn-server/global"
	"github.com/keyturn/go-keyturn-server/repository"
	"github.com/keyturn/go-keyturn-server/types"
)

// fakeStore backs the repository interfaces with in-memory maps and
// mirrors the committer's all-or-nothing semantics, including the
// status-gated transition that makes racing completes lose with a conflict.
type fakeStore struct {
	identities map[string]types.IdentityRecord
	tickets    map[string]*types.RotationTicket
	ledgerErr  error
	commitErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: map[string]types.IdentityRecord{},
		tickets:    map[string]*types.RotationTicket{},
	}
}

type fakeIdentities struct{ s *fakeStore }

func (f fakeIdentities) Get(ctx context.Context, owner string) (*types.IdentityRecord, error) {
	rec, ok := f.s.identities[owner]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &rec, nil
}

type fakeLedger struct{ s *fakeStore }

func (f fakeLedger) Insert(ctx context.Context, ticket *types.RotationTicket) error {
	if f.s.ledgerErr != nil {
		return f.s.ledgerErr
	}
	if _, ok := f.s.tickets[ticket.RotationID]; ok {
		return types.ErrConflict
	}
	f.s.tickets[ticket.RotationID] = ticket
	return nil
}

func (f fakeLedger) Get(ctx context.Context, rotationID string) (*types.RotationTicket, error) {
	if f.s.ledgerErr != nil {
		return nil, f.s.ledgerErr
	}
	ticket, ok := f.s.tickets[rotationID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *ticket
	return &cp, nil
}

func (f fakeLedger) RecentActivity(ctx context.Context, owner string, since time.Time) (int, time.Time, error) {
	if f.s.ledgerErr != nil {
		return 0, time.Time{}, f.s.ledgerErr
	}
	count := 0
	var last time.Time
	for _, t := range f.s.tickets {
		if t.Owner != owner || t.StartedAt.Before(since) {
			continue
		}
		count++
		if t.StartedAt.After(last) {
			last = t.StartedAt
		}
	}
	return count, last, nil
}

func (f fakeLedger) RecordError(ctx context.Context, rotationID string, reason string) error {
	ticket, ok := f.s.tickets[rotationID]
	if !ok {
		return types.ErrNotFound
	}
	ticket.ErrorReason = reason
	return nil
}

type fakeCommitter struct{ s *fakeStore }

func (f fakeCommitter) CommitRotation(ctx context.Context, commit repository.CommitRotation) error {
	if f.s.commitErr != nil {
		return f.s.commitErr
	}
	ticket, ok := f.s.tickets[commit.RotationID]
	if !ok || ticket.Status != types.RotationStatusPending {
		return types.ErrConflict
	}
	now := time.Now().UTC()
	prior := commit.Prior
	ticket.Status = types.RotationStatusCompleted
	ticket.NewSigningPublicKey = commit.NewSigningPublicKey
	ticket.AliasStrategy = commit.AliasStrategy
	ticket.AliasValue = commit.AliasValue
	ticket.PaymentStrategy = commit.PaymentStrategy
	ticket.PaymentValue = commit.PaymentValue
	ticket.CompletedAt = &now
	ticket.PriorState = &prior

	alias := commit.Prior.Alias
	if commit.AliasStrategy == types.FieldStrategyCreate {
		alias = commit.AliasValue
	}
	payment := commit.Prior.PaymentAddress
	if commit.PaymentStrategy == types.FieldStrategyCreate {
		payment = commit.PaymentValue
	}
	f.s.identities[commit.Owner] = types.IdentityRecord{
		Owner:            commit.Owner,
		SigningPublicKey: commit.NewSigningPublicKey,
		Alias:            alias,
		PaymentAddress:   payment,
		UpdatedAt:        now,
	}
	return nil
}

func (f fakeCommitter) CommitRollback(ctx context.Context, ticket *types.RotationTicket) error {
	if f.s.commitErr != nil {
		return f.s.commitErr
	}
	stored, ok := f.s.tickets[ticket.RotationID]
	if !ok || stored.Status != types.RotationStatusCompleted {
		return types.ErrConflict
	}
	stored.Status = types.RotationStatusRolledBack
	f.s.identities[ticket.Owner] = types.IdentityRecord{
		Owner:            ticket.Owner,
		SigningPublicKey: ticket.OldSigningPublicKey,
		Alias:            ticket.PriorState.Alias,
		PaymentAddress:   ticket.PriorState.PaymentAddress,
		UpdatedAt:        time.Now().UTC(),
	}
	return nil
}

func newTestRotationService(t *testing.T) (*RotationService, *fakeStore) {
	t.Helper()
	global.Conf.Rotation = global.RotationConfig{
		DeprecationWindowDays: 30,
		DailyCap:              3,
		CooldownMinutes:       15,
		AllowedAliasDomains:   []string{"keyturn.dev"},
	}
	store := newFakeStore()
	identity := NewIdentityService(fakeIdentities{store})
	limits := NewRotationLimitService(fakeLedger{store})
	domains := NewDomainService()
	svc := NewRotationService(identity, fakeLedger{store}, fakeCommitter{store}, limits, domains)
	return svc, store
}

func testKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(pub)
}

func seedIdentity(store *fakeStore, owner, key, alias, payment string) {
	store.identities[owner] = types.IdentityRecord{
		Owner:            owner,
		SigningPublicKey: key,
		Alias:            alias,
		PaymentAddress:   payment,
		UpdatedAt:        time.Now().UTC(),
	}
}

func TestFullRotationLifecycle(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	oldKey := testKey(t)
	newKey := testKey(t)
	seedIdentity(store, owner, oldKey, "u1@keyturn.dev", "pay-u1")

	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	assert.NotEmpty(t, out.RotationID)
	assert.Equal(t, oldKey, out.CurrentIdentitySnapshot.SigningPublicKey)
	assert.Equal(t, []string{"keyturn.dev"}, out.AliasAllowlist)
	assert.Equal(t, 30, out.DeprecationWindowDays)

	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID: out.RotationID,
		OldKey:     oldKey,
		NewKey:     newKey,
	})
	if err != nil {
		t.Fatal(err)
	}

	// identity carries the new key, alias and payment address survive
	rec := store.identities[owner]
	assert.Equal(t, newKey, rec.SigningPublicKey)
	assert.Equal(t, "u1@keyturn.dev", rec.Alias)
	assert.Equal(t, "pay-u1", rec.PaymentAddress)

	ticket, err := svc.Status(owner, out.RotationID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, types.RotationStatusCompleted, ticket.Status)
	assert.NotNil(t, ticket.CompletedAt)
	assert.NotNil(t, ticket.PriorState)
	assert.Equal(t, "u1@keyturn.dev", ticket.PriorState.Alias)
	assert.Equal(t, "pay-u1", ticket.PriorState.PaymentAddress)

	if err := svc.Rollback(owner, out.RotationID); err != nil {
		t.Fatal(err)
	}
	rec = store.identities[owner]
	assert.Equal(t, oldKey, rec.SigningPublicKey)
	assert.Equal(t, "u1@keyturn.dev", rec.Alias)
	assert.Equal(t, "pay-u1", rec.PaymentAddress)

	ticket, err = svc.Status(owner, out.RotationID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, types.RotationStatusRolledBack, ticket.Status)

	// the lifecycle is monotonic, a second rollback conflicts
	err = svc.Rollback(owner, out.RotationID)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestRollbackRestoresReplacedFields(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	oldKey := testKey(t)
	newKey := testKey(t)
	seedIdentity(store, owner, oldKey, "a@keyturn.dev", "pay-p")
	before := store.identities[owner]

	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID:      out.RotationID,
		OldKey:          oldKey,
		NewKey:          newKey,
		Alias:           &types.AliasChoice{Strategy: types.FieldStrategyCreate, Value: "b@keyturn.dev"},
		PaymentAddress:  &types.PaymentChoice{Strategy: types.FieldStrategyCreate, Value: "pay-q"},
		AttestationRefs: []string{"event://rotation/1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := store.identities[owner]
	assert.Equal(t, newKey, rec.SigningPublicKey)
	assert.Equal(t, "b@keyturn.dev", rec.Alias)
	assert.Equal(t, "pay-q", rec.PaymentAddress)

	ticket, _ := svc.Status(owner, out.RotationID)
	assert.Equal(t, []string{"event://rotation/1"}, ticket.PriorState.AttestationRefs)

	// rollback restores the exact pre-complete values, not merely "some old state"
	if err := svc.Rollback(owner, out.RotationID); err != nil {
		t.Fatal(err)
	}
	rec = store.identities[owner]
	assert.Equal(t, before.SigningPublicKey, rec.SigningPublicKey)
	assert.Equal(t, before.Alias, rec.Alias)
	assert.Equal(t, before.PaymentAddress, rec.PaymentAddress)
}

func TestCompleteAliasAndPaymentCreate(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xfresh"
	newKey := testKey(t)

	// owner without an identity record yet: empty snapshot, empty old key
	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, out.CurrentIdentitySnapshot.SigningPublicKey)

	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID:     out.RotationID,
		OldKey:         "",
		NewKey:         newKey,
		Alias:          &types.AliasChoice{Strategy: types.FieldStrategyCreate, Value: "fresh@keyturn.dev"},
		PaymentAddress: &types.PaymentChoice{Strategy: types.FieldStrategyCreate, Value: "pay-fresh"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := store.identities[owner]
	assert.Equal(t, newKey, rec.SigningPublicKey)
	assert.Equal(t, "fresh@keyturn.dev", rec.Alias)
	assert.Equal(t, "pay-fresh", rec.PaymentAddress)
}

func TestCompleteRejectsSecondAttempt(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	oldKey := testKey(t)
	seedIdentity(store, owner, oldKey, "", "")

	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	input := &types.InputCompleteRotation{RotationID: out.RotationID, OldKey: oldKey, NewKey: testKey(t)}
	if err := svc.Complete(owner, input); err != nil {
		t.Fatal(err)
	}

	// same ticket again, also with a different new key: finalized is finalized
	err = svc.Complete(owner, input)
	assert.ErrorIs(t, err, types.ErrConflict)
	input.NewKey = testKey(t)
	err = svc.Complete(owner, input)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestCompleteKeyMismatch(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	seedIdentity(store, owner, testKey(t), "", "")

	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID: out.RotationID,
		OldKey:     testKey(t), // not the key the ticket was opened against
		NewKey:     testKey(t),
	})
	assert.ErrorIs(t, err, types.ErrKeyMismatch)

	ticket, _ := svc.Status(owner, out.RotationID)
	assert.Equal(t, types.RotationStatusPending, ticket.Status)
}

func TestCompleteInvalidNewKey(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	oldKey := testKey(t)
	seedIdentity(store, owner, oldKey, "", "")

	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID: out.RotationID,
		OldKey:     oldKey,
		NewKey:     "definitely-not-a-key",
	})
	assert.ErrorIs(t, err, types.ErrInvalidPublicKey)
}

func TestCompleteDomainNotAllowedLeavesEverythingUntouched(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	oldKey := testKey(t)
	seedIdentity(store, owner, oldKey, "u1@keyturn.dev", "pay-u1")

	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID: out.RotationID,
		OldKey:     oldKey,
		NewKey:     testKey(t),
		Alias:      &types.AliasChoice{Strategy: types.FieldStrategyCreate, Value: "u1@forbidden.example"},
	})
	assert.ErrorIs(t, err, types.ErrDomainNotAllowed)

	// no partial mutation: identity unchanged, ticket still pending
	rec := store.identities[owner]
	assert.Equal(t, oldKey, rec.SigningPublicKey)
	assert.Equal(t, "u1@keyturn.dev", rec.Alias)
	ticket, _ := svc.Status(owner, out.RotationID)
	assert.Equal(t, types.RotationStatusPending, ticket.Status)

	// and the ticket stays completable with an allowed namespace
	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID: out.RotationID,
		OldKey:     oldKey,
		NewKey:     testKey(t),
		Alias:      &types.AliasChoice{Strategy: types.FieldStrategyCreate, Value: "u1b@keyturn.dev"},
	})
	assert.NoError(t, err)
}

func TestCompleteCommitFailureRecordsReason(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	oldKey := testKey(t)
	seedIdentity(store, owner, oldKey, "", "")

	out, err := svc.Start(owner)
	if err != nil {
		t.Fatal(err)
	}
	store.commitErr = errors.New("connection reset")
	err = svc.Complete(owner, &types.InputCompleteRotation{
		RotationID: out.RotationID,
		OldKey:     oldKey,
		NewKey:     testKey(t),
	})
	assert.ErrorIs(t, err, types.ErrInternal)

	// failure reason lands on the ticket, status stays pending for retry
	store.commitErr = nil
	ticket, _ := svc.Status(owner, out.RotationID)
	assert.Equal(t, types.RotationStatusPending, ticket.Status)
	assert.Equal(t, "rotation commit failed", ticket.ErrorReason)
}

func TestStatusCrossOwnerReadsAsNotFound(t *testing.T) {
	svc, store := newTestRotationService(t)
	seedIdentity(store, "0xu1", testKey(t), "", "")
	out, err := svc.Start("0xu1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Status("0xu2", out.RotationID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	err = svc.Rollback("0xu2", out.RotationID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = svc.Status("0xu1", "no-such-ticket")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRollbackRequiresCompletedTicket(t *testing.T) {
	svc, store := newTestRotationService(t)
	seedIdentity(store, "0xu1", testKey(t), "", "")
	out, err := svc.Start("0xu1")
	if err != nil {
		t.Fatal(err)
	}
	err = svc.Rollback("0xu1", out.RotationID)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestRollbackWindowBoundary(t *testing.T) {
	svc, store := newTestRotationService(t)
	owner := "0xu1"
	oldKey := testKey(t)
	window := 30 * 24 * time.Hour

	seed := func(id string, completedAt time.Time) {
		store.tickets[id] = &types.RotationTicket{
			RotationID:          id,
			Owner:               owner,
			OldSigningPublicKey: oldKey,
			NewSigningPublicKey: testKey(t),
			Status:              types.RotationStatusCompleted,
			StartedAt:           completedAt.Add(-time.Minute),
			CompletedAt:         &completedAt,
			PriorState:          &types.PriorState{Alias: "u1@keyturn.dev"},
		}
	}

	// one second inside the window: allowed
	seed("inside", time.Now().UTC().Add(-window).Add(time.Second))
	assert.NoError(t, svc.Rollback(owner, "inside"))

	// one second past the window: hard deny
	seed("outside", time.Now().UTC().Add(-window).Add(-time.Second))
	err := svc.Rollback(owner, "outside")
	assert.ErrorIs(t, err, types.ErrWindowExpired)
	assert.Equal(t, types.RotationStatusCompleted, store.tickets["outside"].Status)
}
