package util

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func TestGenerateRotationID(t *testing.T) {
	id := GenerateRotationID()
	if len(id) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(id))
	}
	if id == GenerateRotationID() {
		t.Fatal("two generated rotation ids collided")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Fatal("equal strings compared unequal")
	}
	if ConstantTimeEqual("abc", "abd") {
		t.Fatal("different strings compared equal")
	}
	if ConstantTimeEqual("abc", "abcd") {
		t.Fatal("different length strings compared equal")
	}
	if !ConstantTimeEqual("", "") {
		t.Fatal("empty strings compared unequal")
	}
}

func TestIsEd25519PublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if !IsEd25519PublicKey(base64.StdEncoding.EncodeToString(pub)) {
		t.Fatal("valid public key rejected")
	}
	if IsEd25519PublicKey("not-base64!!") {
		t.Fatal("invalid base64 accepted")
	}
	if IsEd25519PublicKey(base64.StdEncoding.EncodeToString([]byte("too short"))) {
		t.Fatal("wrong length key accepted")
	}
}
