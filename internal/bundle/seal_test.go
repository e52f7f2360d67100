package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func testKey() []byte {
	k := make([]byte, keySize)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestSealUnsealRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string][]byte{
		"a.mcs":         bytes.Repeat([]byte("hello world "), 100),
		"sub/b.pyc":     []byte("recovered bytecode"),
		"empty.txt":     {},
		"sub/exact.bin": bytes.Repeat([]byte{0xAB}, chunkSize), // exact multiple of chunkSize
	}
	for name, content := range files {
		p := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, content, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	key := testKey()
	bundlePath := filepath.Join(t.TempDir(), "out.bundle")
	if err := Seal(bundlePath, src, key); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	dst := t.TempDir()
	if err := Unseal(dst, bundlePath, key); err != nil {
		t.Fatalf("Unseal: %v", err)
	}

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, name))
		if err != nil {
			t.Fatalf("read back %s: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s round trip mismatch: got %d bytes, want %d bytes", name, len(got), len(want))
		}
	}
}

func TestUnsealRejectsWrongKey(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "f.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	bundlePath := filepath.Join(t.TempDir(), "out.bundle")
	key := testKey()
	if err := Seal(bundlePath, src, key); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	wrongKey := make([]byte, keySize)
	copy(wrongKey, key)
	wrongKey[0] ^= 0xFF

	dst := t.TempDir()
	if err := Unseal(dst, bundlePath, wrongKey); err == nil {
		t.Fatal("expected authentication failure with wrong key")
	}
}

func TestSealRejectsBadKeyLength(t *testing.T) {
	if err := Seal(filepath.Join(t.TempDir(), "x"), t.TempDir(), []byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}
