package marshal

import (
	"crypto/rc4"
	"encoding/binary"
	"math/big"
	"strconv"

	"github.com/relicmc/mcprecover/internal/errs"
)

// rc4Key is the fixed per-object RC4 key used by the 'm'/'1'/'b' tags.
var rc4Key = []byte{0x8D, 0x06, 0xE8, 0xC8, 0xB7, 0xD7, 0xB7, 0x28, 0x46, 0x51, 0xAE, 0x04}

// On-wire tag bytes.
const (
	tagDictEnd      = 0x30 // '0'
	tagNoneUpper    = 0x4E // 'N'
	tagNoneLower    = 0x6E // 'n'
	tagTrue         = 0x54 // 'T'
	tagFalse        = 0x46 // 'F'
	tagEllipsis     = 0x2E // '.'
	tagStopIter     = 0x53 // 'S'
	tagI32          = 0x69 // 'i'
	tagI64          = 0x49 // 'I'
	tagBigIntLower  = 0x6C // 'l'
	tagBigIntUpper  = 0x4C // 'L'
	tagFloatText    = 0x66 // 'f'
	tagFloatBinary  = 0x67 // 'g'
	tagBytes        = 0x73 // 's'
	tagInterned     = 0x74 // 't'
	tagUnicode      = 0x75 // 'u'
	tagRef          = 0x52 // 'R'
	tagTuple        = 0x28 // '('
	tagList         = 0x5B // '['
	tagSet          = 0x3C // '<'
	tagFrozenSet    = 0x3E // '>'
	tagDict         = 0x7B // '{'
	tagRC4          = 0x6D // 'm'
	tagRC4Digit     = 0x31 // '1'
	tagRC4Ref       = 0x62 // 'b'
	tagXor1         = 0x08
	tagXor2         = 0x0E
	tagXor3         = 0x0F
	tagCodeC        = 0x63 // 'c'
	tagCodeM        = 0x4D // 'M'
	tagCodeO        = 0x6F // 'o'
)

// Decoder is a position-tracked cursor over an MCS marshal byte stream. The
// reference table grows monotonically for the lifetime of one Decoder and
// is discarded with it.
type Decoder struct {
	data []byte
	pos  int
	refs []*Object
}

// NewDecoder wraps data for a single decode session.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Pos returns the decoder's current cursor position, for error reporting.
func (d *Decoder) Pos() int { return d.pos }

func (d *Decoder) rByte() byte {
	if d.pos >= len(d.data) {
		return 0xFF
	}
	v := d.data[d.pos]
	d.pos++
	return v
}

// rFixed returns exactly n bytes; a short read pads the missing tail with
// 0xFF before the caller reinterprets it.
func (d *Decoder) rFixed(n int) []byte {
	remain := len(d.data) - d.pos
	if remain >= n {
		b := d.data[d.pos : d.pos+n]
		d.pos += n
		return b
	}
	buf := make([]byte, n)
	if remain > 0 {
		copy(buf, d.data[d.pos:])
	}
	for i := remain; i < n; i++ {
		buf[i] = 0xFF
	}
	d.pos = len(d.data)
	return buf
}

func (d *Decoder) rInt32() int32 {
	return int32(binary.LittleEndian.Uint32(d.rFixed(4)))
}

func (d *Decoder) rInt64() int64 {
	return int64(binary.LittleEndian.Uint64(d.rFixed(8)))
}

func (d *Decoder) rFloat64() float64 {
	bits := binary.LittleEndian.Uint64(d.rFixed(8))
	return float64FromBits(bits)
}

// rShort reads a 15-bit-digit's backing 2-byte little-endian word for the
// BigInt decoder; a short read here yields 0, matching the reference's
// r_short (distinct from the 0xFF padding used by the fixed-width readers).
func (d *Decoder) rShort() uint16 {
	if d.pos+2 > len(d.data) {
		return 0
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos : d.pos+2])
	d.pos += 2
	return v
}

// rString reads a 4-byte length-prefixed byte string, clamping the length
// to the remaining buffer.
func (d *Decoder) rString() []byte {
	size := d.rInt32()
	if size < 0 {
		return nil
	}
	n := int(size)
	remain := len(d.data) - d.pos
	if n > remain {
		n = remain
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) rBigInt() *big.Int {
	size := d.rInt32()
	if size == 0 {
		return big.NewInt(0)
	}
	n := size
	neg := n < 0
	if neg {
		n = -n
	}
	res := new(big.Int)
	for i := int32(0); i < n; i++ {
		digit := d.rShort() & 0x7FFF
		shifted := new(big.Int).Lsh(big.NewInt(int64(digit)), uint(i)*15)
		res.Or(res, shifted)
	}
	if neg {
		res.Neg(res)
	}
	return res
}

// Decode reads one object from the front of the stream.
func (d *Decoder) Decode() (*Object, error) {
	tag := d.rByte()
	switch tag {
	case tagDictEnd:
		return &Object{Kind: kindDictEnd}, nil
	case tagNoneUpper, tagNoneLower:
		return &Object{Kind: KindNone}, nil
	case tagTrue:
		return &Object{Kind: KindTrue}, nil
	case tagFalse:
		return &Object{Kind: KindFalse}, nil
	case tagEllipsis:
		return &Object{Kind: KindEllipsis}, nil
	case tagStopIter:
		return &Object{Kind: KindStopIteration}, nil

	case tagI32:
		return &Object{Kind: KindI32, I32: d.rInt32()}, nil
	case tagI64:
		return &Object{Kind: KindI64, I64: d.rInt64()}, nil
	case tagBigIntLower, tagBigIntUpper:
		return &Object{Kind: KindBigInt, Big: d.rBigInt()}, nil
	case tagFloatText:
		sz := d.rByte()
		raw := d.rStringN(int(sz))
		f, _ := strconv.ParseFloat(string(raw), 64)
		return &Object{Kind: KindFloatText, Float: f}, nil
	case tagFloatBinary:
		return &Object{Kind: KindFloatBinary, Float: d.rFloat64()}, nil

	case tagBytes:
		return &Object{Kind: KindBytes, Bytes: cloneBytes(d.rString())}, nil
	case tagInterned:
		v := cloneBytes(d.rString())
		obj := &Object{Kind: KindInternedBytes, Bytes: v}
		d.refs = append(d.refs, obj)
		return obj, nil
	case tagUnicode:
		return &Object{Kind: KindUnicode, Str: decodeUTF8Lossy(d.rString())}, nil
	case tagRef:
		idx := d.rInt32()
		if idx >= 0 && int(idx) < len(d.refs) {
			return d.refs[idx], nil
		}
		return &Object{Kind: KindNone}, nil

	case tagTuple:
		return d.decodeItems(KindTuple)
	case tagList:
		return d.decodeItems(KindList)
	case tagSet:
		return d.decodeItems(KindSet)
	case tagFrozenSet:
		return d.decodeItems(KindFrozenSet)

	case tagDict:
		return d.decodeDict()

	case tagRC4, tagRC4Digit:
		return &Object{Kind: KindBytes, Bytes: rc4Decrypt(d.rString())}, nil
	case tagRC4Ref:
		v := rc4Decrypt(d.rString())
		obj := &Object{Kind: KindBytes, Bytes: v}
		d.refs = append(d.refs, obj)
		return obj, nil

	case tagXor1, tagXor2, tagXor3:
		raw := cloneBytes(d.rString())
		for i := range raw {
			raw[i] ^= 0x8D
		}
		obj := &Object{Kind: KindBytes, Bytes: raw}
		if tag == tagXor3 {
			d.refs = append(d.refs, obj)
		}
		return obj, nil

	case tagCodeC, tagCodeM, tagCodeO:
		code, err := d.decodeCode(tag)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindCode, Code: code}, nil
	}

	return nil, errs.InvalidTagAt(d.pos-1, tag)
}

// rStringN reads exactly n raw bytes, clamped to the remaining buffer (used
// by the 'f' tag's 1-byte-length float text).
func (d *Decoder) rStringN(n int) []byte {
	remain := len(d.data) - d.pos
	if n > remain {
		n = remain
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func rc4Decrypt(data []byte) []byte {
	c, err := rc4.NewCipher(rc4Key)
	if err != nil {
		// rc4Key has a fixed, valid length; this cannot fail.
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func (d *Decoder) decodeItems(kind Kind) (*Object, error) {
	n := d.rInt32()
	items := make([]*Object, 0, clampCount(n))
	for i := int32(0); i < n; i++ {
		item, err := d.Decode()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &Object{Kind: kind, Items: items}, nil
}

func (d *Decoder) decodeDict() (*Object, error) {
	var pairs []DictPair
	for {
		key, err := d.Decode()
		if err != nil {
			return nil, err
		}
		if key.Kind == kindDictEnd {
			break
		}
		val, err := d.Decode()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, DictPair{Key: key, Value: val})
	}
	return &Object{Kind: KindDict, Pairs: pairs}, nil
}

// clampCount bounds a pre-allocation hint so a corrupt/adversarial count
// field cannot force an unbounded allocation before any byte is read.
func clampCount(n int32) int32 {
	const capHint = 1 << 16
	if n < 0 || n > capHint {
		return 0
	}
	return n
}
