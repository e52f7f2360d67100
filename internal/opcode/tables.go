package opcode

// Map is a scrambled-opcode to standard-opcode table. A missing entry
// passes the source opcode through unchanged.
type Map map[byte]byte

// Magic values selecting the A and B tables; any other magic (including a
// nil/None code-object magic) selects MapC.
const (
	MagicA int32 = -901139953
	MagicB int32 = -1135027243
)

// MapA, MapB, MapC hold the recovered opcode mappings. The tables are the
// product of reverse-engineering, not of any algorithmic structure. MapA
// carries only the entries listed below, and MapB and MapC are empty; an
// opcode with no entry passes through unchanged (see Translate).
var (
	MapA = Map{
		0x00: 9,
		0x2B: 4,
		0x79: 110,
		// Three distinct source opcodes collapse onto standard opcode 23;
		// the collision is in the scrambled instruction set itself.
		0x02: 23,
		0x49: 23,
		0x4D: 23,
	}

	MapB = Map{}

	MapC = Map{}
)

// Select returns the table a code object's magic value picks.
func Select(magic *int32) Map {
	if magic == nil {
		return MapC
	}
	switch *magic {
	case MagicA:
		return MapA
	case MagicB:
		return MapB
	default:
		return MapC
	}
}

// Translate looks up op, falling back to op itself when absent.
func (m Map) Translate(op byte) byte {
	if std, ok := m[op]; ok {
		return std
	}
	return op
}
