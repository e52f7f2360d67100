package marshal

import (
	"math"
	"unicode/utf8"
)

func float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// decodeUTF8Lossy decodes b as UTF-8, replacing invalid sequences with the
// Unicode replacement character (the 'u' tag's "decode errors" policy).
func decodeUTF8Lossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out := make([]rune, 0, len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		out = append(out, r)
		i += size
	}
	return string(out)
}

// decodeCode reads a code object in the field ordering selected by tag:
// 'c' lacks a magic field (treated as nil/None); 'M' and 'o' carry one.
func (d *Decoder) decodeCode(tag byte) (*CodeObject, error) {
	c := &CodeObject{}
	var err error

	read := func(dst **Object) {
		if err != nil {
			return
		}
		*dst, err = d.Decode()
	}

	switch tag {
	case tagCodeC:
		c.Argcount = d.rInt32()
		c.Nlocals = d.rInt32()
		c.Stacksize = d.rInt32()
		c.Flags = d.rInt32()
		read(&c.Code)
		read(&c.Consts)
		read(&c.Names)
		read(&c.Varnames)
		read(&c.Freevars)
		read(&c.Cellvars)
		read(&c.Filename)
		read(&c.Name)
		if err != nil {
			return nil, err
		}
		c.Firstlineno = d.rInt32()
		read(&c.Lnotab)
		c.Magic = nil

	case tagCodeM:
		c.Argcount = d.rInt32()
		read(&c.Lnotab)
		read(&c.Cellvars)
		if err != nil {
			return nil, err
		}
		c.Firstlineno = d.rInt32()
		read(&c.Varnames)
		read(&c.Consts)
		read(&c.Name)
		if err != nil {
			return nil, err
		}
		c.Stacksize = d.rInt32()
		read(&c.Freevars)
		read(&c.Names)
		read(&c.Code)
		if err != nil {
			return nil, err
		}
		c.Flags = d.rInt32()
		read(&c.Filename)
		if err != nil {
			return nil, err
		}
		c.Nlocals = d.rInt32()
		magic := d.rInt32()
		c.Magic = &magic

	case tagCodeO:
		c.Nlocals = d.rInt32()
		c.Flags = d.rInt32()
		read(&c.Consts)
		if err != nil {
			return nil, err
		}
		c.Stacksize = d.rInt32()
		read(&c.Varnames)
		if err != nil {
			return nil, err
		}
		c.Argcount = d.rInt32()
		read(&c.Cellvars)
		read(&c.Names)
		read(&c.Freevars)
		read(&c.Name)
		read(&c.Code)
		if err != nil {
			return nil, err
		}
		c.Firstlineno = d.rInt32()
		read(&c.Lnotab)
		if err != nil {
			return nil, err
		}
		magic := d.rInt32()
		c.Magic = &magic
		read(&c.Filename)
	}

	if err != nil {
		return nil, err
	}
	return c, nil
}
