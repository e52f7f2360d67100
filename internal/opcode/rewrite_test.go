package opcode

import (
	"reflect"
	"testing"
)

func magicA() *int32 {
	m := MagicA
	return &m
}

// TestRewriteMapA pins a known translation under map A:
// [0x00, 0x2B, 0x79, 0x10, 0x00] rewrites to [9, 4, 110, 0x10, 0x00] —
// opcode 4 drops its nonexistent argument, opcode 110 keeps its two
// argument bytes.
func TestRewriteMapA(t *testing.T) {
	in := []byte{0x00, 0x2B, 0x79, 0x10, 0x00}
	want := []byte{9, 4, 110, 0x10, 0x00}

	got := Rewrite(in, magicA())
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rewrite = %v, want %v", got, want)
	}
}

func TestRewriteUnknownMagicIsIdentity(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03}
	other := int32(12345)

	got := Rewrite(in, &other)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("Rewrite = %v, want identity %v", got, in)
	}
}

func TestRewriteNilMagicIsIdentity(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03}
	got := Rewrite(in, nil)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("Rewrite = %v, want identity %v", got, in)
	}
}

// TestRewriteAmbiguousOpcodesCollapse checks map A's many-to-one
// mapping: three distinct source opcodes all become 23.
func TestRewriteAmbiguousOpcodesCollapse(t *testing.T) {
	in := []byte{0x02, 0x49, 0x4D}
	want := []byte{23, 23, 23}

	got := Rewrite(in, magicA())
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rewrite = %v, want %v", got, want)
	}
}

// TestRewriteArgThresholdBoundary pins the 93 source-side split: opcode 92
// consumes one byte and carries no argument, opcode 93 consumes three. Both
// translate to themselves here (no map entry) and both are >= the 90
// target-side split, so each emits argument bytes on the way out.
func TestRewriteArgThresholdBoundary(t *testing.T) {
	in := []byte{92, 93, 0x34, 0x12}
	// 92: one byte consumed, no source arg, emitted with a zero arg.
	// 93: three bytes consumed, arg 0x1234 preserved.
	want := []byte{92, 0, 0, 93, 0x34, 0x12}

	got := Rewrite(in, nil)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rewrite = %v, want %v", got, want)
	}
}

// TestRewriteTruncatedTwoArgInstruction exercises the case where a two-arg
// opcode appears with fewer than two trailing bytes left in the stream: the
// decode loop consumes the remainder rather than reading past the end.
func TestRewriteTruncatedTwoArgInstruction(t *testing.T) {
	in := []byte{0x79} // >= twoArgThreshold, no trailing bytes at all
	got := Rewrite(in, magicA())
	want := []byte{110, 0, 0} // std 110 >= stdTwoArgThreshold, arg defaults to 0,0
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rewrite = %v, want %v", got, want)
	}
}

func TestSelectPicksTableByMagic(t *testing.T) {
	a := MagicA
	b := MagicB
	other := int32(7)

	if reflect.ValueOf(Select(&a)).Pointer() != reflect.ValueOf(MapA).Pointer() {
		t.Error("Select(MagicA) did not return MapA")
	}
	if reflect.ValueOf(Select(&b)).Pointer() != reflect.ValueOf(MapB).Pointer() {
		t.Error("Select(MagicB) did not return MapB")
	}
	if reflect.ValueOf(Select(&other)).Pointer() != reflect.ValueOf(MapC).Pointer() {
		t.Error("Select(other) did not return MapC")
	}
	if reflect.ValueOf(Select(nil)).Pointer() != reflect.ValueOf(MapC).Pointer() {
		t.Error("Select(nil) did not return MapC")
	}
}
