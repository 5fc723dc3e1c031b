package security

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewSessionCipher("passphrase")
	if err != nil {
		t.Fatalf("NewSessionCipher: %v", err)
	}

	enc, err := c.Encrypt(`{"id":"sess1","messages":[]}`)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.HasPrefix(enc, "enc:") {
		t.Errorf("missing enc: prefix: %q", enc)
	}
	if strings.Contains(enc, "sess1") {
		t.Error("ciphertext leaks plaintext")
	}

	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec != `{"id":"sess1","messages":[]}` {
		t.Errorf("decrypted = %q", dec)
	}
}

func TestDecryptAcrossInstances(t *testing.T) {
	c1, _ := NewSessionCipher("shared")
	enc, err := c1.Encrypt("survives restart")
	if err != nil {
		t.Fatal(err)
	}

	// A fresh cipher with the same passphrase must decrypt: the salt is
	// embedded in the value.
	c2, _ := NewSessionCipher("shared")
	dec, err := c2.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec != "survives restart" {
		t.Errorf("decrypted = %q", dec)
	}
}

func TestDecryptPlaintextPassthrough(t *testing.T) {
	c, _ := NewSessionCipher("p")
	got, err := c.Decrypt("not encrypted at all")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "not encrypted at all" {
		t.Errorf("passthrough = %q", got)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	c1, _ := NewSessionCipher("right")
	enc, _ := c1.Encrypt("secret")

	c2, _ := NewSessionCipher("wrong")
	if _, err := c2.Decrypt(enc); err == nil {
		t.Fatal("expected decrypt failure")
	}
}

func TestDecryptGarbage(t *testing.T) {
	c, _ := NewSessionCipher("p")
	if _, err := c.Decrypt("enc:!!not-base64!!"); err == nil {
		t.Fatal("expected base64 error")
	}
	if _, err := c.Decrypt("enc:AAAA"); err == nil {
		t.Fatal("expected short ciphertext error")
	}
}

func TestEmptyPassphraseRejected(t *testing.T) {
	if _, err := NewSessionCipher(""); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestIsEncrypted(t *testing.T) {
	c, _ := NewSessionCipher("p")
	if c.IsEncrypted("plain") {
		t.Error("plain marked encrypted")
	}
	if !c.IsEncrypted("enc:abc") {
		t.Error("enc: value not marked encrypted")
	}
}

func TestTokenDigestVerify(t *testing.T) {
	d := TokenDigest("tok-123")
	if d == "tok-123" {
		t.Fatal("digest equals token")
	}
	if !VerifyToken("tok-123", d) {
		t.Error("VerifyToken rejected correct token")
	}
	if VerifyToken("tok-999", d) {
		t.Error("VerifyToken accepted wrong token")
	}
	if VerifyToken("tok-123", "%%%notbase64") {
		t.Error("VerifyToken accepted bad digest")
	}
}
