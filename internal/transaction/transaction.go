// Package transaction builds and signs ledger transactions.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cuulee/bigchaindb/internal/identity"
)

// Operations.
const (
	OpCreate  = "CREATE"
	OpGenesis = "GENESIS"
)

// Transaction is a single-input single-output transfer. The load generator
// only ever produces self-transfers (owner == recipient), the genesis record
// is a GENESIS operation signed by the node.
type Transaction struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature,omitempty"`
}

// NewSelfTransfer builds an unsigned self-transfer of amount 1 addressed to
// the node's own public key.
func NewSelfTransfer(publicKey string) *Transaction {
	return &Transaction{
		Operation: OpCreate,
		Owner:     publicKey,
		Recipient: publicKey,
		Amount:    1,
		Timestamp: time.Now().UnixNano(),
	}
}

// NewGenesis builds the unsigned genesis record for a node.
func NewGenesis(publicKey string) *Transaction {
	return &Transaction{
		Operation: OpGenesis,
		Owner:     publicKey,
		Recipient: publicKey,
		Amount:    1,
		Timestamp: time.Now().UnixNano(),
	}
}

// Digest returns the keccak256 hash of the canonical serialization,
// excluding ID and Signature.
func (t *Transaction) Digest() ([]byte, error) {
	body := struct {
		Operation string `json:"operation"`
		Owner     string `json:"owner"`
		Recipient string `json:"recipient"`
		Amount    int64  `json:"amount"`
		Timestamp int64  `json:"timestamp"`
	}{t.Operation, t.Owner, t.Recipient, t.Amount, t.Timestamp}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return crypto.Keccak256(raw), nil
}

// AssignID fills in the content-derived ID without signing. Used for
// records a node stores on its own authority, such as genesis.
func (t *Transaction) AssignID() error {
	digest, err := t.Digest()
	if err != nil {
		return err
	}
	t.ID = hexutil.Encode(digest)
	return nil
}

// Sign fills in ID and Signature using the given identity. The identity must
// carry a private key and its public key must match the transaction owner.
func (t *Transaction) Sign(id *identity.Identity) error {
	if id.PublicKey() != t.Owner {
		return errors.New("signing identity does not own transaction")
	}

	digest, err := t.Digest()
	if err != nil {
		return err
	}
	sig, err := id.Sign(digest)
	if err != nil {
		return err
	}

	t.ID = hexutil.Encode(digest)
	t.Signature = hexutil.Encode(sig)
	return nil
}

// Verify checks the ID and signature against the owner's public key.
func (t *Transaction) Verify() error {
	if t.Signature == "" {
		return errors.New("transaction is not signed")
	}

	digest, err := t.Digest()
	if err != nil {
		return err
	}
	if t.ID != hexutil.Encode(digest) {
		return errors.New("transaction id does not match content")
	}

	sig, err := hexutil.Decode(t.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	ok, err := identity.Verify(t.Owner, digest, sig)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("signature verification failed")
	}
	return nil
}

// Encode serializes the signed transaction for storage.
func (t *Transaction) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// Decode parses a stored transaction.
func Decode(raw []byte) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return &t, nil
}
