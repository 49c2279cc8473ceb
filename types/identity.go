package types

import "time"

// IdentityRecord binds an owner address to its signing public key,
// an optional human-readable alias and an optional payment address.
// Mutated only through the rotation committer during complete and rollback.
type IdentityRecord struct {
	Owner            string    `json:"owner"`
	SigningPublicKey string    `json:"signingPublicKey,omitempty"` // base64 Ed25519 public key
	Alias            string    `json:"alias,omitempty"`            // name@domain
	PaymentAddress   string    `json:"paymentAddress,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

// IdentitySnapshot is the read-only view of an identity record handed
// back by start; fields are empty when never set.
type IdentitySnapshot struct {
	SigningPublicKey string `json:"signingPublicKey,omitempty"`
	Alias            string `json:"alias,omitempty"`
	PaymentAddress   string `json:"paymentAddress,omitempty"`
}
