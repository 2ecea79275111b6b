package security

import (
	"strings"
	"testing"
)

const (
	testCipherKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testIndexKey  = "ffeeddccbbaa99887766554433221100"
)

func newTestCipher(t *testing.T) *AESFieldCipher {
	t.Helper()
	c, err := NewAESFieldCipher(testCipherKey, testIndexKey)
	if err != nil {
		t.Fatalf("NewAESFieldCipher returned error: %v", err)
	}
	return c
}

func TestFieldCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Encrypt("user@example.com")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if strings.Contains(sealed, "user@example.com") {
		t.Fatal("ciphertext leaks plaintext")
	}

	opened, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if opened != "user@example.com" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestFieldCipherNonDeterministic(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("081234567890")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	second, err := c.Encrypt("081234567890")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	if first == second {
		t.Fatal("expected distinct ciphertexts for the same plaintext")
	}
}

func TestFieldCipherBlindIndexDeterministic(t *testing.T) {
	c := newTestCipher(t)

	if c.BlindIndex("user@example.com") != c.BlindIndex("user@example.com") {
		t.Fatal("blind index must be deterministic")
	}
	if c.BlindIndex("user@example.com") == c.BlindIndex("other@example.com") {
		t.Fatal("distinct values must not collide")
	}
}

func TestFieldCipherRejectsTamperedValue(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	tampered := sealed[:len(sealed)-2] + "AA"
	if _, err := c.Decrypt(tampered); err == nil {
		t.Fatal("expected tampered ciphertext to fail decryption")
	}
}

func TestFieldCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewAESFieldCipher("abcd", testIndexKey); err == nil {
		t.Fatal("expected short key to be rejected")
	}
	if _, err := NewAESFieldCipher(testCipherKey, ""); err == nil {
		t.Fatal("expected empty index key to be rejected")
	}
}
