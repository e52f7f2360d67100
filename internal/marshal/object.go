// Package marshal implements the recursive tagged-object decoder for the
// MCS marshal format: a variant of a compiled-script marshal stream with
// per-object RC4/XOR obfuscation and three permuted code-object layouts.
package marshal

import "math/big"

// Kind discriminates the decoded object variants.
type Kind int

const (
	KindNone Kind = iota
	KindTrue
	KindFalse
	KindEllipsis
	KindStopIteration
	KindI32
	KindI64
	KindBigInt
	KindFloatText
	KindFloatBinary
	KindBytes
	KindInternedBytes
	KindUnicode
	KindTuple
	KindList
	KindSet
	KindFrozenSet
	KindDict
	KindCode
	// kindDictEnd is the internal '0' sentinel: Decode returns it for a '0'
	// tag, and decodeDict consumes it as the end of a dict.
	kindDictEnd
)

// DictPair is one key/value entry of a KindDict object, in on-wire order.
type DictPair struct {
	Key   *Object
	Value *Object
}

// Object is a decoded MarshalObject. Only the fields relevant to Kind are
// populated; the rest are zero.
type Object struct {
	Kind Kind

	I32   int32
	I64   int64
	Big   *big.Int
	Float float64

	Bytes []byte // KindBytes, KindInternedBytes
	Str   string // KindUnicode

	Items []*Object  // KindTuple, KindList, KindSet, KindFrozenSet
	Pairs []DictPair // KindDict

	Code *CodeObject // KindCode
}

// CodeObject is the decoded code object regardless of which of the three
// on-wire tags (c/M/o) produced it. Magic is nil for the 'c' layout, which
// carries no magic field.
type CodeObject struct {
	Argcount    int32
	Nlocals     int32
	Stacksize   int32
	Flags       int32
	Code        *Object
	Consts      *Object
	Names       *Object
	Varnames    *Object
	Freevars    *Object
	Cellvars    *Object
	Filename    *Object
	Name        *Object
	Firstlineno int32
	Lnotab      *Object
	Magic       *int32
}

// RawBytes returns a Bytes/InternedBytes/Unicode object's content as raw
// bytes, regardless of which of those on-wire tags produced it.
func RawBytes(o *Object) []byte {
	if o == nil {
		return nil
	}
	if o.Kind == KindUnicode {
		return []byte(o.Str)
	}
	return o.Bytes
}

// FilenameBytes returns the code object's filename field as raw bytes.
func (c *CodeObject) FilenameBytes() []byte { return RawBytes(c.Filename) }
