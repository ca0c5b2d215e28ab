package security

import (
	"crypto"
	"crypto/rsa"
	"testing"
)

func TestGenerateRSAKeyPairProducesCorrectSize(t *testing.T) {
	key, err := GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair: %v", err)
	}
	if key.N.BitLen() < RsaKeyBits-1 || key.N.BitLen() > RsaKeyBits {
		t.Fatalf("modulus bit length = %d, want ~%d", key.N.BitLen(), RsaKeyBits)
	}
}

func TestSignPSSRoundTrips(t *testing.T) {
	key, err := GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair: %v", err)
	}
	digest := SHA256([]byte("header.payload"))
	sig, err := SignPSS(key, digest)
	if err != nil {
		t.Fatalf("SignPSS: %v", err)
	}

	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest, sig, opts); err != nil {
		t.Fatalf("VerifyPSS: %v", err)
	}
}

func TestModulusAndExponentAreNonEmptyAndStable(t *testing.T) {
	key, err := GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair: %v", err)
	}
	n1, e1 := ModulusAndExponent(&key.PublicKey)
	n2, e2 := ModulusAndExponent(&key.PublicKey)
	if n1 == "" || e1 == "" {
		t.Fatalf("expected non-empty n/e, got n=%q e=%q", n1, e1)
	}
	if n1 != n2 || e1 != e2 {
		t.Fatalf("ModulusAndExponent must be deterministic for the same key")
	}
}

func TestRandomBytesLengthAndEntropy(t *testing.T) {
	a, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	b, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("expected 32-byte slices")
	}
	if string(a) == string(b) {
		t.Fatalf("two independent RandomBytes calls collided")
	}
}
