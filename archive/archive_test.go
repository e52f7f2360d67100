package archive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/relicmc/mcprecover/internal/errs"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestPackUnpackRoundTrip packs a small directory and unpacks it again:
// every file comes back byte-identical, with an auto-generated
// contents.json driving the restore.
func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "scripts", "main.py"), "print('hello')")
	writeFile(t, filepath.Join(src, "readme.txt"), "a small mod")

	archivePath := filepath.Join(t.TempDir(), "pack.mcpk")
	if err := Pack(src, archivePath); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		t.Fatalf("stat archive: %v", err)
	}
	if info.Size() < headerSize+trailerSize {
		t.Fatalf("archive too small: %d bytes", info.Size())
	}

	dst := t.TempDir()
	var warnings []errs.Warning
	sink := errs.Sink(func(w errs.Warning) { warnings = append(warnings, w) })
	if err := Unpack(archivePath, dst, sink); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	for _, w := range warnings {
		t.Errorf("unexpected warning: %s", w)
	}

	got, err := os.ReadFile(filepath.Join(dst, "scripts", "main.py"))
	if err != nil {
		t.Fatalf("read back scripts/main.py: %v", err)
	}
	if string(got) != "print('hello')" {
		t.Errorf("scripts/main.py = %q", got)
	}

	got2, err := os.ReadFile(filepath.Join(dst, "readme.txt"))
	if err != nil {
		t.Fatalf("read back readme.txt: %v", err)
	}
	if string(got2) != "a small mod" {
		t.Errorf("readme.txt = %q", got2)
	}

	if _, err := os.Stat(filepath.Join(dst, "contents.json")); err != nil {
		t.Errorf("contents.json was not restored: %v", err)
	}
}

func BenchmarkUnpack(b *testing.B) {
	src := b.TempDir()
	for i := 0; i < 32; i++ {
		p := filepath.Join(src, "data", fmt.Sprintf("file%02d.bin", i))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			b.Fatal(err)
		}
		if err := os.WriteFile(p, bytes.Repeat([]byte{byte(i)}, 4096), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	archivePath := filepath.Join(b.TempDir(), "bench.mcpk")
	if err := Pack(src, archivePath); err != nil {
		b.Fatal(err)
	}
	dst := b.TempDir()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Unpack(archivePath, dst, nil); err != nil {
			b.Fatal(err)
		}
	}
}

// TestHeaderRoundTrip checks the header encode/decode pair agrees on the
// fields that matter for locating the dir table, index, and data region.
func TestHeaderRoundTrip(t *testing.T) {
	b := writeHeader(24, 81, 200)
	hdr, err := parseHeader(b)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if hdr.DirTableOffset != headerSize {
		t.Errorf("DirTableOffset = %d, want %d", hdr.DirTableOffset, headerSize)
	}
	if hdr.IndexBaseOffset != 81 {
		t.Errorf("IndexBaseOffset = %d, want 81", hdr.IndexBaseOffset)
	}
	if hdr.DataBaseOffset != 200 {
		t.Errorf("DataBaseOffset = %d, want 200", hdr.DataBaseOffset)
	}
	if hdr.DirTableSize != 24 {
		t.Errorf("DirTableSize = %d, want 24", hdr.DirTableSize)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	b := writeHeader(0, headerSize, headerSize)
	b[0] = 'X'
	if _, err := parseHeader(b); err == nil {
		t.Fatal("expected InvalidMagic error")
	}
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := parseHeader(make([]byte, 10)); err == nil {
		t.Fatal("expected ShortRead error")
	}
}

// TestSignedSortKeyOrdering checks that byte-lexicographic order of the
// sort key matches signed int32 ascending order across the sign boundary.
func TestSignedSortKeyOrdering(t *testing.T) {
	vals := []uint32{0x80000000, 0xFFFFFFFF, 0x00000000, 0x00000001, 0x7FFFFFFF}
	// signed interpretation, ascending: 0x80000000 (min), 0xFFFFFFFF (-1),
	// 0x00000000, 0x00000001, 0x7FFFFFFF (max)
	want := []uint32{0x80000000, 0xFFFFFFFF, 0x00000000, 0x00000001, 0x7FFFFFFF}

	keyed := make([][]byte, len(vals))
	for i, v := range vals {
		keyed[i] = signedSortKey(v)
	}

	// bubble sort the parallel slices by key so the test has no
	// dependency on any particular sort algorithm's stability quirks.
	idx := []int{0, 1, 2, 3, 4}
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			if string(keyed[idx[j]]) < string(keyed[idx[i]]) {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}
	for i, v := range idx {
		if vals[v] != want[i] {
			t.Errorf("position %d: got 0x%08X, want 0x%08X", i, vals[v], want[i])
		}
	}
}
