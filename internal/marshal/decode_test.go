package marshal

import (
	"bytes"
	"crypto/rc4"
	"encoding/binary"
	"testing"
)

func i32le(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func strTag(s string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('s')
	buf.Write(i32le(int32(len(s))))
	buf.WriteString(s)
	return buf.Bytes()
}

// TestDictRoundTrip decodes {"x": 1, "y": (None, True, False)} encoded
// with tags {, s, i, (.
func TestDictRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(strTag("x"))
	buf.WriteByte('i')
	buf.Write(i32le(1))
	buf.Write(strTag("y"))
	buf.WriteByte('(')
	buf.Write(i32le(3))
	buf.WriteByte('N')
	buf.WriteByte('T')
	buf.WriteByte('F')
	buf.WriteByte('0') // dict end sentinel

	dec := NewDecoder(buf.Bytes())
	obj, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if obj.Kind != KindDict {
		t.Fatalf("Kind = %v, want KindDict", obj.Kind)
	}
	if len(obj.Pairs) != 2 {
		t.Fatalf("len(Pairs) = %d, want 2", len(obj.Pairs))
	}
	if string(obj.Pairs[0].Key.Bytes) != "x" || obj.Pairs[0].Value.I32 != 1 {
		t.Errorf("pair 0 = %+v", obj.Pairs[0])
	}
	y := obj.Pairs[1].Value
	if y.Kind != KindTuple || len(y.Items) != 3 {
		t.Fatalf("pair 1 value = %+v", y)
	}
	if y.Items[0].Kind != KindNone || y.Items[1].Kind != KindTrue || y.Items[2].Kind != KindFalse {
		t.Errorf("tuple items = %+v", y.Items)
	}
}

func TestInvalidTag(t *testing.T) {
	dec := NewDecoder([]byte{0xAB})
	_, err := dec.Decode()
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestShortIntPadsWithFF(t *testing.T) {
	// A single 'i' tag followed by only 2 of the needed 4 bytes.
	dec := NewDecoder([]byte{'i', 0x01, 0x02})
	obj, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantU32 := uint32(0xFFFF0201)
	want := int32(wantU32)
	if obj.I32 != want {
		t.Errorf("I32 = 0x%08X, want 0x%08X", uint32(obj.I32), uint32(want))
	}
}

func TestRefTable(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte('(')
	buf.Write(i32le(2))
	buf.WriteByte('t') // interned string, appended to ref table at index 0
	buf.Write(i32le(5))
	buf.WriteString("hello")
	buf.WriteByte('R') // reference back to index 0
	buf.Write(i32le(0))

	dec := NewDecoder(buf.Bytes())
	obj, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(obj.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(obj.Items))
	}
	if string(obj.Items[0].Bytes) != "hello" {
		t.Fatalf("Items[0] = %+v", obj.Items[0])
	}
	if obj.Items[1] != obj.Items[0] {
		t.Errorf("ref did not resolve to the interned object")
	}
}

func TestRC4RoundTrip(t *testing.T) {
	plain := []byte("secret payload")
	enc := make([]byte, len(plain))
	c, err := rc4.NewCipher(rc4Key)
	if err != nil {
		t.Fatal(err)
	}
	c.XORKeyStream(enc, plain)

	var buf bytes.Buffer
	buf.WriteByte('m')
	buf.Write(i32le(int32(len(enc))))
	buf.Write(enc)

	dec := NewDecoder(buf.Bytes())
	obj, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(obj.Bytes, plain) {
		t.Errorf("RC4 decrypt = %q, want %q", obj.Bytes, plain)
	}
}

func TestCodeObjectTagC(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte('c')
	buf.Write(i32le(1))    // argcount
	buf.Write(i32le(2))    // nlocals
	buf.Write(i32le(3))    // stacksize
	buf.Write(i32le(0))    // flags
	buf.Write(strTag("x")) // code
	buf.WriteByte('(')
	buf.Write(i32le(0)) // consts = ()
	buf.WriteByte('(')
	buf.Write(i32le(0)) // names = ()
	buf.WriteByte('(')
	buf.Write(i32le(0)) // varnames = ()
	buf.WriteByte('(')
	buf.Write(i32le(0)) // freevars = ()
	buf.WriteByte('(')
	buf.Write(i32le(0))        // cellvars = ()
	buf.Write(strTag("t.py"))  // filename
	buf.Write(strTag("<mod>")) // name
	buf.Write(i32le(1))        // firstlineno
	buf.Write(strTag(""))      // lnotab

	dec := NewDecoder(buf.Bytes())
	obj, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if obj.Kind != KindCode {
		t.Fatalf("Kind = %v, want KindCode", obj.Kind)
	}
	if obj.Code.Magic != nil {
		t.Errorf("tag 'c' code object should have nil Magic, got %v", *obj.Code.Magic)
	}
	if string(obj.Code.Filename.Bytes) != "t.py" {
		t.Errorf("Filename = %q", obj.Code.Filename.Bytes)
	}
}

