package types

import "time"

// RotationStatus is the lifecycle state of a rotation ticket.
// Transitions are monotonic: pending -> completed -> rolled_back.
type RotationStatus string

const (
	RotationStatusPending    RotationStatus = "pending"
	RotationStatusCompleted  RotationStatus = "completed"
	RotationStatusRolledBack RotationStatus = "rolled_back"
)

// FieldStrategy says what complete does with an optional identity field
type FieldStrategy string

const (
	FieldStrategyKeep   FieldStrategy = "keep"
	FieldStrategyCreate FieldStrategy = "create"
)

// PriorState captures alias and payment address as they existed
// immediately before commit. Written exactly once, at complete time;
// the sole basis for rollback. AttestationRefs are opaque caller-supplied
// pointers to externally published events, stored for audit only.
type PriorState struct {
	Alias           string   `json:"alias,omitempty"`
	PaymentAddress  string   `json:"paymentAddress,omitempty"`
	AttestationRefs []string `json:"attestationRefs,omitempty"`
}

// RotationTicket is the audit record of one key-rotation attempt.
// Tickets are never deleted.
type RotationTicket struct {
	RotationID          string         `json:"rotationId"`
	Owner               string         `json:"owner"`
	OldSigningPublicKey string         `json:"oldSigningPublicKey"` // fixed at creation
	NewSigningPublicKey string         `json:"newSigningPublicKey,omitempty"`
	AliasStrategy       FieldStrategy  `json:"aliasStrategy,omitempty"`
	AliasValue          string         `json:"aliasValue,omitempty"`
	PaymentStrategy     FieldStrategy  `json:"paymentStrategy,omitempty"`
	PaymentValue        string         `json:"paymentValue,omitempty"`
	Status              RotationStatus `json:"status"`
	StartedAt           time.Time      `json:"startedAt"`
	CompletedAt         *time.Time     `json:"completedAt,omitempty"`
	PriorState          *PriorState    `json:"priorStateSnapshot,omitempty"`
	ErrorReason         string         `json:"errorReason,omitempty"`
}
