package types

// OutputStartRotation is the start response: the ticket handle plus the
// policy constraints the client needs before committing.
type OutputStartRotation struct {
	RotationID              string           `json:"rotationId"`
	CurrentIdentitySnapshot IdentitySnapshot `json:"currentIdentitySnapshot"`
	AliasAllowlist          []string         `json:"aliasAllowlist"`
	DeprecationWindowDays   int              `json:"deprecationWindowDays"`
}

type OutputSuccess struct {
	Success bool `json:"success"`
}
