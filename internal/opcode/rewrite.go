// Package opcode translates a code object's scrambled instruction stream
// into standard opcodes, picking the remap table from the code object's
// magic value.
package opcode

// twoArgThreshold is the scrambled-opcode boundary below which an
// instruction carries no inline argument bytes.
const twoArgThreshold = 93

// stdTwoArgThreshold is the boundary applied to the *translated* opcode to
// decide whether the standard encoding carries a 2-byte little-endian
// argument. It is deliberately not the same constant as twoArgThreshold:
// the scrambled and standard opcode spaces don't line up one opcode at a
// time, only at this coarser split.
const stdTwoArgThreshold = 90

// Rewrite decodes code as a stream of scrambled instructions and
// re-encodes each with its standard opcode, selecting the remap table from
// magic (nil selects MapC, same as an unrecognized magic value).
func Rewrite(code []byte, magic *int32) []byte {
	table := Select(magic)
	out := make([]byte, 0, len(code))

	i := 0
	for i < len(code) {
		op := code[i]

		var arg []byte
		var hasArg bool
		if op >= twoArgThreshold {
			if i+2 < len(code) {
				arg = code[i+1 : i+3]
				hasArg = true
				i += 3
			} else {
				// Not enough bytes left for a full instruction; consume
				// whatever remains rather than reading out of bounds.
				i = len(code)
			}
		} else {
			i++
		}

		std := table.Translate(op)
		out = append(out, std)

		if std >= stdTwoArgThreshold {
			var b [2]byte
			if hasArg {
				b[0], b[1] = arg[0], arg[1]
			}
			out = append(out, b[0], b[1])
		}
	}

	return out
}
