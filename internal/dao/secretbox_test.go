package dao

import (
	"testing"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox("unit-test-key")
	if err != nil {
		t.Fatalf("secret box: %v", err)
	}

	sealed, err := box.Seal("hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "hunter2" {
		t.Fatal("sealed secret must not equal plaintext")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "hunter2" {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestSecretBoxNonces(t *testing.T) {
	box, err := NewSecretBox("unit-test-key")
	if err != nil {
		t.Fatalf("secret box: %v", err)
	}

	first, _ := box.Seal("same")
	second, _ := box.Seal("same")
	if first == second {
		t.Error("identical plaintexts must seal differently")
	}
}

func TestSecretBoxWrongKey(t *testing.T) {
	box, _ := NewSecretBox("key-one")
	other, _ := NewSecretBox("key-two")

	sealed, _ := box.Seal("secret")
	if _, err := other.Open(sealed); err == nil {
		t.Error("opening with the wrong key must fail")
	}
}

func TestSecretBoxRequiresKey(t *testing.T) {
	if _, err := NewSecretBox(""); err == nil {
		t.Error("empty key must be rejected")
	}
}
