package identity

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateSignVerify(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !id.CanSign() {
		t.Fatal("generated identity should be able to sign")
	}

	digest := crypto.Keccak256([]byte("payload"))
	sig, err := id.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := Verify(id.PublicKey(), digest, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("signature should verify against own public key")
	}

	other, _ := Generate()
	ok, err = Verify(other.PublicKey(), digest, sig)
	if err != nil {
		t.Fatalf("Verify with other key: %v", err)
	}
	if ok {
		t.Fatal("signature should not verify against a different public key")
	}
}

func TestFromKeysRoundtrip(t *testing.T) {
	orig, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	restored, err := FromKeys(orig.PublicKey(), orig.PrivateKeyHex())
	if err != nil {
		t.Fatalf("FromKeys: %v", err)
	}
	if restored.PublicKey() != orig.PublicKey() {
		t.Fatalf("public key changed: %s != %s", restored.PublicKey(), orig.PublicKey())
	}
	if !restored.CanSign() {
		t.Fatal("restored identity should be able to sign")
	}
}

func TestFromKeysPublicOnly(t *testing.T) {
	orig, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	id, err := FromKeys(orig.PublicKey(), "")
	if err != nil {
		t.Fatalf("FromKeys: %v", err)
	}
	if id.CanSign() {
		t.Fatal("public-only identity must not sign")
	}
	if id.PrivateKeyHex() != "" {
		t.Fatal("public-only identity must not expose a private key")
	}
	if _, err := id.Sign([]byte("digest")); !errors.Is(err, ErrNoPrivateKey) {
		t.Fatalf("Sign error = %v, want ErrNoPrivateKey", err)
	}
}

func TestFromKeysMismatch(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()

	if _, err := FromKeys(a.PublicKey(), b.PrivateKeyHex()); err == nil {
		t.Fatal("mismatched keypair should be rejected")
	}
}

func TestFromKeysInvalid(t *testing.T) {
	tests := []struct {
		name    string
		public  string
		private string
	}{
		{"empty", "", ""},
		{"garbage public", "not-hex", ""},
		{"garbage private", "", "not-hex"},
		{"short private", "", "0xabcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromKeys(tt.public, tt.private); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizeHexPrefix(t *testing.T) {
	orig, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Keys without the 0x prefix must be accepted.
	bare := orig.PrivateKeyHex()[2:]
	id, err := FromKeys("", bare)
	if err != nil {
		t.Fatalf("FromKeys without prefix: %v", err)
	}
	if id.PublicKey() != orig.PublicKey() {
		t.Fatal("derived public key differs for unprefixed private key")
	}
}
