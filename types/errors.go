package types

import "errors"

var (
	// ErrNotFound is returned when a record doesn't exist (or isn't visible to the caller)
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a ticket is not in the status required for the requested transition
	ErrConflict = errors.New("conflict")

	// ErrBadRequest for malformed or missing input
	ErrBadRequest = errors.New("bad request")

	// ErrInternal (for unhandled exceptions)
	ErrInternal = errors.New("internal error")

	// ErrInvalidPublicKey is returned when a supplied key is not a valid Ed25519 public key
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrKeyMismatch is returned when the claimed old signing key doesn't match the ticket
	ErrKeyMismatch = errors.New("old signing key mismatch")

	// ErrDomainNotAllowed is returned when a new alias targets a namespace outside the allowlist
	ErrDomainNotAllowed = errors.New("alias domain not allowed")

	// ErrWindowExpired is returned when rollback is attempted after the deprecation window closed
	ErrWindowExpired = errors.New("deprecation window expired")

	// ErrCooldownActive is returned when a rotation is started too soon after the previous one
	ErrCooldownActive = errors.New("rotation cooldown not elapsed")

	// ErrDailyCapReached is returned when the owner hit the rotation cap for the current 24h window
	ErrDailyCapReached = errors.New("daily rotation cap reached")
)
