package transaction

import (
	"testing"

	"github.com/cuulee/bigchaindb/internal/identity"
)

func TestSignAndVerify(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tx := NewSelfTransfer(id.PublicKey())
	if tx.Owner != tx.Recipient {
		t.Fatal("self-transfer must address itself")
	}
	if err := tx.Sign(id); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if tx.ID == "" || tx.Signature == "" {
		t.Fatal("signing must fill in ID and signature")
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	id, _ := identity.Generate()

	tx := NewSelfTransfer(id.PublicKey())
	if err := tx.Sign(id); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tx.Amount = 1000
	if err := tx.Verify(); err == nil {
		t.Fatal("tampered amount must fail verification")
	}
}

func TestSignWrongOwner(t *testing.T) {
	owner, _ := identity.Generate()
	stranger, _ := identity.Generate()

	tx := NewSelfTransfer(owner.PublicKey())
	if err := tx.Sign(stranger); err == nil {
		t.Fatal("signing with a foreign identity must fail")
	}
}

func TestVerifyUnsigned(t *testing.T) {
	id, _ := identity.Generate()
	tx := NewSelfTransfer(id.PublicKey())
	if err := tx.Verify(); err == nil {
		t.Fatal("unsigned transaction must not verify")
	}
}

func TestEncodeDecode(t *testing.T) {
	id, _ := identity.Generate()
	tx := NewGenesis(id.PublicKey())
	if tx.Operation != OpGenesis {
		t.Fatalf("operation = %s, want %s", tx.Operation, OpGenesis)
	}
	if err := tx.Sign(id); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	raw, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *got != *tx {
		t.Fatalf("roundtrip mismatch: %+v != %+v", got, tx)
	}
	if err := got.Verify(); err != nil {
		t.Fatalf("decoded transaction must verify: %v", err)
	}
}

func TestAssignID(t *testing.T) {
	id, _ := identity.Generate()
	tx := NewGenesis(id.PublicKey())

	if err := tx.AssignID(); err != nil {
		t.Fatalf("AssignID: %v", err)
	}
	if tx.ID == "" {
		t.Fatal("AssignID must set the ID")
	}
	if tx.Signature != "" {
		t.Fatal("AssignID must not sign")
	}

	digest, err := tx.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	want := tx.ID
	tx2 := *tx
	tx2.ID = ""
	if err := tx2.AssignID(); err != nil {
		t.Fatalf("AssignID: %v", err)
	}
	if tx2.ID != want {
		t.Fatalf("ID not deterministic: %s != %s (digest %x)", tx2.ID, want, digest)
	}
}
