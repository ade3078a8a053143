// Package identity manages the node keypair used to sign transactions.
package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoPrivateKey is returned when a signing operation is attempted on an
// identity that only carries a public key.
var ErrNoPrivateKey = errors.New("identity has no private key")

// Identity holds a node's keypair. The private key is optional: an identity
// restored from a public key alone can verify but not sign.
type Identity struct {
	publicKey  string
	privateKey *ecdsa.PrivateKey
}

// Generate creates a fresh in-memory keypair. Nothing is persisted.
func Generate() (*Identity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Identity{
		publicKey:  hexutil.Encode(crypto.CompressPubkey(&key.PublicKey)),
		privateKey: key,
	}, nil
}

// FromKeys builds an identity from hex-encoded keys. The private key may be
// empty; if both are given they must belong together.
func FromKeys(publicHex, privateHex string) (*Identity, error) {
	if privateHex == "" {
		if publicHex == "" {
			return nil, errors.New("empty keypair")
		}
		if _, err := decodePublicKey(publicHex); err != nil {
			return nil, err
		}
		return &Identity{publicKey: publicHex}, nil
	}

	raw, err := hexutil.Decode(normalizeHex(privateHex))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	derived := hexutil.Encode(crypto.CompressPubkey(&key.PublicKey))
	if publicHex != "" && normalizeHex(publicHex) != derived {
		return nil, errors.New("public key does not match private key")
	}

	return &Identity{publicKey: derived, privateKey: key}, nil
}

// PublicKey returns the hex-encoded compressed public key.
func (id *Identity) PublicKey() string {
	return id.publicKey
}

// PrivateKeyHex returns the hex-encoded private key, or "" if absent.
func (id *Identity) PrivateKeyHex() string {
	if id.privateKey == nil {
		return ""
	}
	return hexutil.Encode(crypto.FromECDSA(id.privateKey))
}

// CanSign reports whether this identity carries a private key.
func (id *Identity) CanSign() bool {
	return id.privateKey != nil
}

// Sign signs a 32-byte digest and returns the 65-byte recoverable signature.
func (id *Identity) Sign(digest []byte) ([]byte, error) {
	if id.privateKey == nil {
		return nil, ErrNoPrivateKey
	}
	sig, err := crypto.Sign(digest, id.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}

// Verify checks a signature made by the holder of publicHex over digest.
// The signature may be 64 or 65 bytes (recovery id ignored).
func Verify(publicHex string, digest, sig []byte) (bool, error) {
	pub, err := decodePublicKey(publicHex)
	if err != nil {
		return false, err
	}
	if len(sig) == crypto.SignatureLength {
		sig = sig[:crypto.SignatureLength-1]
	}
	if len(sig) != crypto.SignatureLength-1 {
		return false, fmt.Errorf("invalid signature length %d", len(sig))
	}
	return crypto.VerifySignature(crypto.CompressPubkey(pub), digest, sig), nil
}

func decodePublicKey(publicHex string) (*ecdsa.PublicKey, error) {
	raw, err := hexutil.Decode(normalizeHex(publicHex))
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	pub, err := crypto.DecompressPubkey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return pub, nil
}

// normalizeHex accepts keys with or without the 0x prefix.
func normalizeHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s
	}
	return "0x" + s
}
