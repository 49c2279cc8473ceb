package types

// AliasChoice selects what happens to the alias during complete
type AliasChoice struct {
	Strategy FieldStrategy `json:"strategy" validate:"required,oneof=keep create"`
	Value    string        `json:"value,omitempty"` // required when strategy = create
}

// PaymentChoice selects what happens to the payment address during complete
type PaymentChoice struct {
	Strategy FieldStrategy `json:"strategy" validate:"required,oneof=keep create"`
	Value    string        `json:"value,omitempty"`
}

// for complete
type InputCompleteRotation struct {
	RotationID      string         `json:"rotationId" validate:"required"`
	OldKey          string         `json:"oldKey"` // empty when the identity never had a key
	NewKey          string         `json:"newKey" validate:"required"`
	Alias           *AliasChoice   `json:"alias,omitempty"`
	PaymentAddress  *PaymentChoice `json:"paymentAddress,omitempty"`
	AttestationRefs []string       `json:"attestationRefs,omitempty"`
}

// for status and rollback
type InputRotationRef struct {
	RotationID string `json:"rotationId" validate:"required"`
}
