package types

// ServerKeys is the on-disk format of the server signing keypair
// (generated with the keys subcommand)
type ServerKeys struct {
	PrivateKey string `json:"privateKey"` // base64, 64 byte Ed25519 private key
	Created    int64  `json:"created"`    // unix milliseconds
}
