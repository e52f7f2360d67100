// Package hashcodec computes the dual 32-bit directory and file hashes MCPK
// uses to locate entries without storing names on disk.
package hashcodec

import "encoding/binary"

const (
	magic1 uint32 = 0x267B0B11
	magic2 uint32 = 0xBDEB77DE
	magic3 uint32 = 0x02040801
	magic4 uint32 = 0x7D7EBBDE
	magic5 uint32 = 0x00804021

	h1Init  uint32 = 0x37A8B34E
	h2Init  uint32 = 0x77630EAB
	rotInit uint32 = 0xF4FA8928

	finalXor uint32 = 0x9BE74448
	mixXor   uint32 = 0x66F42C48
)

func rotl32(v uint32, n uint32) uint32 {
	n &= 31
	return (v << n) | (v >> (32 - n))
}

// half1 computes the "h1" side of one mixing step. The +1-if-hi!=0 term is
// not a general carry propagation and must not be simplified away; hashes
// diverge from the on-disk tables without it.
func half1(x1, x2, rot uint32) uint32 {
	k1 := ((rot^magic1)+x2)&magic2 | magic3
	p1 := uint64(x1) * uint64(k1)
	hi, lo := uint32(p1>>32), uint32(p1)
	var carry uint32
	if hi != 0 {
		carry = 1
	}
	s1 := uint64(hi) + uint64(carry) + uint64(lo)
	return uint32(s1+(s1>>32)) & 0xFFFFFFFF
}

// half2 computes the "h2" side of one mixing step (the asymmetric 2*hi
// doubling, with no +1 correction).
func half2(x1, x2, rot uint32) uint32 {
	k2 := ((rot^magic1)+x1)&magic4 | magic5
	p2 := uint64(x2) * uint64(k2)
	hi, lo := uint32(p2>>32), uint32(p2)
	s2 := uint64(lo) + 2*uint64(hi)
	return uint32(s2+2*(s2>>32)) & 0xFFFFFFFF
}

// mix is the common per-chunk round: x1 = h1^chunk, x2 = h2^chunk feed both
// halves under the current rot.
func mix(h1, h2, rot, chunk uint32) (uint32, uint32) {
	x1, x2 := h1^chunk, h2^chunk
	return half1(x1, x2, rot), half2(x1, x2, rot)
}

// finalize runs the two post-chunk mixing rounds. The second round's h2
// side carries one extra bit (the top bit of its 64-bit product) folded
// into the doubling sum, with no counterpart in half2/mix; it must stay
// separate or directory hashes drift from the on-disk tables.
func finalize(h1, h2, rot uint32) uint32 {
	f1, f2 := h1^finalXor, h2^finalXor

	rot1 := rotl32(rot, 1)
	y1 := half1(f1, f2, rot1) ^ mixXor
	y2 := half2(f1, f2, rot1) ^ mixXor

	rot2 := rotl32(rot, 2)
	part1 := half1(y1, y2, rot2)

	k2 := rot2 ^ magic1
	t4 := (k2+y1)&magic4 | magic5
	p4 := uint64(y2) * uint64(t4)
	hi, lo := uint32(p4>>32), uint32(p4)
	s4 := uint64(lo) + 2*uint64(hi) + uint64(p4>>63)
	part2 := uint32(s4+2*(s4>>32)) & 0xFFFFFFFF

	return part1 ^ part2
}

// state accumulates one hash computation's mutable (h1, h2, rot) triple.
type state struct {
	h1, h2, rot uint32
}

func newState() state {
	return state{h1: h1Init, h2: h2Init, rot: rotInit}
}

func (s *state) chunk(c uint32) {
	s.rot = rotl32(s.rot, 1)
	s.h1, s.h2 = mix(s.h1, s.h2, s.rot, c)
}

func (s state) finish() uint32 {
	return finalize(s.h1, s.h2, s.rot)
}

// Dir computes HASH_DIR(path): the path is truncated at (and excluding) its
// last '/'; a path with no '/' or an empty remainder hashes to 0.
func Dir(path string) uint32 {
	last := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			last = i
			break
		}
	}
	if last == -1 {
		return 0
	}
	data := []byte(path[:last])
	if len(data) == 0 {
		return 0
	}
	return hashBytes(data)
}

// hashBytes mixes full 4-byte little-endian chunks, then one partial tail
// chunk packed little-endian into a zero-initialized word.
func hashBytes(data []byte) uint32 {
	s := newState()
	n := len(data)
	i := 0
	for i+4 <= n {
		s.chunk(binary.LittleEndian.Uint32(data[i : i+4]))
		i += 4
	}
	if i < n {
		var tail [4]byte
		copy(tail[:], data[i:])
		s.chunk(binary.LittleEndian.Uint32(tail[:]))
	}
	return s.finish()
}

// File computes HASH_FILE(name): hashing stops as soon as a NUL or the end
// of the string is encountered within a 4-byte chunk, mixing in the partial
// chunk zero-padded before finalizing. An already-empty or NUL-first name
// finalizes immediately from the initial state.
func File(name string) uint32 {
	data := []byte(name)
	s := newState()
	if len(data) == 0 || data[0] == 0 {
		return s.finish()
	}

	idx := 0
	n := len(data)
	for idx < n {
		s.rot = rotl32(s.rot, 1)
		var chunk uint32
		done := false
		for j := 0; j < 4; j++ {
			if idx < n && data[idx] != 0 {
				chunk |= uint32(data[idx]) << (uint(j) * 8)
				idx++
			} else {
				s.h1, s.h2 = mix(s.h1, s.h2, s.rot, chunk)
				done = true
				break
			}
		}
		if done {
			return s.finish()
		}
		s.h1, s.h2 = mix(s.h1, s.h2, s.rot, chunk)
	}
	return s.finish()
}

// Signed reinterprets an unsigned hash as its two's-complement signed int32
// value, the ordering MCPK's directory/index tables sort by.
func Signed(h uint32) int32 {
	return int32(h)
}
