package keys

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateAndRotate(t *testing.T) {
	if testing.Short() {
		t.Skip("4096-bit key generation is slow")
	}
	dir := t.TempDir()

	m, err := LoadOrGenerate(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	key, kid := m.Active()
	if key == nil || kid == "" {
		t.Fatal("expected active key material")
	}

	info, err := os.Stat(filepath.Join(dir, "jwt_private.pem"))
	if err != nil {
		t.Fatalf("private key not persisted: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("private key mode = %o, want 0600", perm)
	}
	if _, err := os.Stat(filepath.Join(dir, "jwt_public.pem")); err != nil {
		t.Fatalf("public key not published: %v", err)
	}

	// Subsequent boots load the same pair.
	again, err := LoadOrGenerate(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, againKid := again.Active(); againKid != kid {
		t.Fatalf("reload produced a different key id: %s != %s", againKid, kid)
	}

	// Rotation: new kid signs, old public key stays published.
	newKid, err := m.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if newKid == kid {
		t.Fatal("rotation must produce a fresh key id")
	}
	published, err := m.Published()
	if err != nil {
		t.Fatalf("Published: %v", err)
	}
	if len(published) != 2 {
		t.Fatalf("expected both keys published during the grace window, got %d", len(published))
	}
	if published[0].Kid != newKid {
		t.Fatalf("active key must come first, got %s", published[0].Kid)
	}

	// A fresh boot sees the retired key on disk too.
	rebooted, err := LoadOrGenerate(dir)
	if err != nil {
		t.Fatalf("reboot: %v", err)
	}
	pub, err := rebooted.Published()
	if err != nil {
		t.Fatalf("Published after reboot: %v", err)
	}
	if len(pub) != 2 {
		t.Fatalf("retired key must survive restarts, got %d published", len(pub))
	}

	// After the grace window the old key retires for good.
	if err := m.Retire(kid); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	published, _ = m.Published()
	if len(published) != 1 {
		t.Fatalf("expected a single published key after retirement, got %d", len(published))
	}
}

func TestFingerprintStable(t *testing.T) {
	if testing.Short() {
		t.Skip("4096-bit key generation is slow")
	}
	dir := t.TempDir()
	m, err := LoadOrGenerate(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	key, kid := m.Active()

	again, err := Fingerprint(&key.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if again != kid {
		t.Fatalf("fingerprint must be deterministic: %s != %s", again, kid)
	}
	if len(kid) != 16 {
		t.Fatalf("key id length = %d, want 16", len(kid))
	}
}
