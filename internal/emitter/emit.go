// Package emitter writes a decoded MCS object graph out as a byte-exact
// standard compiled-script image: an 8-byte prefix followed by one encoded
// root object, always using the canonical 'c' code-object layout.
package emitter

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/relicmc/mcprecover/internal/marshal"
	"github.com/relicmc/mcprecover/internal/opcode"
)

// Prefix is the 8-byte compiled-script header written before the root
// object.
var Prefix = [8]byte{0x03, 0xF3, 0x0D, 0x0A, 0x00, 0x00, 0x00, 0x00}

// Emitter accumulates the standard compiled-script image in a single
// growable byte buffer.
type Emitter struct {
	buf bytes.Buffer
}

// New creates an Emitter and writes the 8-byte prefix.
func New() *Emitter {
	e := &Emitter{}
	e.buf.Write(Prefix[:])
	return e
}

// Bytes returns the accumulated image.
func (e *Emitter) Bytes() []byte { return e.buf.Bytes() }

func (e *Emitter) writeInt32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
}

// EmitRoot encodes obj as the image's root object.
func (e *Emitter) EmitRoot(obj *marshal.Object) {
	e.emitObject(obj)
}

func (e *Emitter) emitObject(obj *marshal.Object) {
	if obj == nil {
		e.buf.WriteByte('N')
		return
	}

	switch obj.Kind {
	case marshal.KindNone:
		e.buf.WriteByte('N')
	case marshal.KindTrue:
		e.buf.WriteByte('T')
	case marshal.KindFalse:
		e.buf.WriteByte('F')
	case marshal.KindEllipsis:
		e.buf.WriteByte('.')

	case marshal.KindI32:
		e.buf.WriteByte('i')
		e.writeInt32(obj.I32)
	case marshal.KindI64:
		e.emitInteger(big.NewInt(obj.I64))
	case marshal.KindBigInt:
		v := obj.Big
		if v == nil {
			v = big.NewInt(0)
		}
		e.emitInteger(v)

	case marshal.KindFloatText, marshal.KindFloatBinary:
		s := formatFloat(obj.Float)
		e.buf.WriteByte('f')
		e.buf.WriteByte(byte(len(s)))
		e.buf.WriteString(s)

	case marshal.KindBytes, marshal.KindInternedBytes:
		e.emitRawBytes(obj.Bytes)
	case marshal.KindUnicode:
		e.emitRawBytes([]byte(obj.Str))

	case marshal.KindTuple:
		e.emitSeq('(', obj.Items)
	case marshal.KindList:
		e.emitSeq('[', obj.Items)
	case marshal.KindSet:
		e.emitSeq('<', obj.Items)
	case marshal.KindFrozenSet:
		e.emitSeq('>', obj.Items)

	case marshal.KindDict:
		e.buf.WriteByte('{')
		for _, p := range obj.Pairs {
			e.emitObject(p.Key)
			e.emitObject(p.Value)
		}
		e.buf.WriteByte('0')

	case marshal.KindCode:
		e.emitCode(obj.Code)

	default:
		e.buf.WriteByte('N')
	}
}

func (e *Emitter) emitRawBytes(b []byte) {
	e.buf.WriteByte('s')
	e.writeInt32(int32(len(b)))
	e.buf.Write(b)
}

func (e *Emitter) emitSeq(tag byte, items []*marshal.Object) {
	e.buf.WriteByte(tag)
	e.writeInt32(int32(len(items)))
	for _, it := range items {
		e.emitObject(it)
	}
}

// emitInteger writes v as 'i' when it fits a signed 32-bit range, matching
// the reference encoder's int-vs-long branch, else falls back to 'l'.
func (e *Emitter) emitInteger(v *big.Int) {
	lo, hi := big.NewInt(-2147483648), big.NewInt(2147483647)
	if v.Cmp(lo) >= 0 && v.Cmp(hi) <= 0 {
		e.buf.WriteByte('i')
		e.writeInt32(int32(v.Int64()))
		return
	}
	e.emitBigInt(v)
}

// emitBigInt writes the arbitrary-precision 'l' encoding: a signed digit
// count followed by that many 15-bit little-endian digits.
func (e *Emitter) emitBigInt(v *big.Int) {
	e.buf.WriteByte('l')
	if v.Sign() == 0 {
		e.writeInt32(0)
		return
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)

	var digits []uint16
	mask := big.NewInt(0x7FFF)
	tmp := new(big.Int).Set(abs)
	for tmp.Sign() != 0 {
		d := new(big.Int).And(tmp, mask)
		digits = append(digits, uint16(d.Uint64()))
		tmp.Rsh(tmp, 15)
	}

	count := int32(len(digits))
	if neg {
		count = -count
	}
	e.writeInt32(count)
	for _, d := range digits {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], d)
		e.buf.Write(b[:])
	}
}

func (e *Emitter) itemsAsTuple(o *marshal.Object) []*marshal.Object {
	if o == nil {
		return nil
	}
	return o.Items
}

// emitCode writes a code object in the canonical 'c' field order,
// regardless of which of the three on-wire layouts it was decoded from.
// The scrambled code bytes are rewritten to standard opcodes first.
func (e *Emitter) emitCode(c *marshal.CodeObject) {
	if c == nil {
		e.buf.WriteByte('N')
		return
	}

	e.buf.WriteByte('c')
	e.writeInt32(c.Argcount)
	e.writeInt32(c.Nlocals)
	e.writeInt32(c.Stacksize)
	e.writeInt32(c.Flags)

	transformed := opcode.Rewrite(marshal.RawBytes(c.Code), c.Magic)
	e.emitRawBytes(transformed)

	e.emitSeq('(', e.itemsAsTuple(c.Consts))
	e.emitSeq('(', e.itemsAsTuple(c.Names))
	e.emitSeq('(', e.itemsAsTuple(c.Varnames))
	e.emitSeq('(', e.itemsAsTuple(c.Freevars))
	e.emitSeq('(', e.itemsAsTuple(c.Cellvars))

	e.emitObject(c.Filename)
	e.emitObject(c.Name)
	e.writeInt32(c.Firstlineno)
	e.emitObject(c.Lnotab)
}
