package util

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

const rotationIDBytes = 32

// GenerateRotationID returns a fresh unguessable rotation handle
// (32 random bytes, hex encoded)
func GenerateRotationID() string {
	b := make([]byte, rotationIDBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process has no usable entropy source
		panic(err)
	}
	return hex.EncodeToString(b)
}

// ConstantTimeEqual compares two key strings without leaking the mismatch
// position. The values compared here are public keys, not secrets; this is
// intentional belt-and-braces hygiene, nothing more.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Check if a base64 string is an ed25519 public key.
func IsEd25519PublicKey(b64Key string) bool {
	decoded, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		// Base64 decoding error.
		return false
	}
	if len(decoded) != ed25519.PublicKeySize {
		// The key is not the correct size.
		return false
	}

	// It's a valid size, so we'll assume it's an Ed25519 public key.
	return true
}
