// Package envelope implements the layered MCS cryptographic envelope:
// detect header, XOR, byte-reversal, zlib, and the NLS substitution cipher.
package envelope

import (
	"bytes"

	"github.com/klauspost/compress/zlib"

	"github.com/relicmc/mcprecover/internal/errs"
	"github.com/relicmc/mcprecover/internal/nlscipher"
)

const bcbcXorLen = 130

var mcpkXorKey = [4]byte{'M', 'C', 'P', 'K'}

func xorPrefix(buf []byte, n int, key byte) {
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		buf[i] ^= key
	}
}

func xorFirst4(buf []byte) {
	n := len(buf)
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		buf[i] ^= mcpkXorKey[i]
	}
}

func reversed(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[len(buf)-1-i] = b
	}
	return out
}

func looksLikeZlib(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0] != 0x78 {
		return false
	}
	switch b[1] {
	case 0x01, 0x9C, 0xDA:
		return true
	}
	return false
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func deflateMax(b []byte) []byte {
	var out bytes.Buffer
	w, _ := zlib.NewWriterLevel(&out, zlib.BestCompression)
	w.Write(b)
	w.Close()
	return out.Bytes()
}

// Decrypt peels the MCS envelope's layers and returns the recovered
// compiled-script bytes. On zlib failure it returns the pre-inflate buffer
// alongside an *errs.Error{Kind: errs.ZlibError}; on an unrecognized leading
// byte it returns the input buffer alongside
// *errs.Error{Kind: errs.UnrecognizedEnvelope}.
func Decrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var zlibContent []byte
	switch {
	case data[0] == 0x35:
		zlibContent = append([]byte(nil), data...)
		xorFirst4(zlibContent)
	case len(data) >= 2 && data[0] == 0xE5 && data[1] == 0x1F:
		zlibContent = nlscipher.NewDefault().Decrypt(data)
	default:
		return data, errs.New(errs.UnrecognizedEnvelope, nil)
	}

	if len(zlibContent) <= 2 {
		return zlibContent, nil
	}
	if !looksLikeZlib(zlibContent) {
		return zlibContent, nil
	}

	final, err := inflate(zlibContent)
	if err != nil {
		return zlibContent, errs.New(errs.ZlibError, err)
	}

	if bytes.HasPrefix(final, []byte("bcbc")) {
		xorPrefix(final, bcbcXorLen, 0x9C)
		final = reversed(final)
	}
	return final, nil
}

// ContentType selects Encrypt's output shape: 1 is the standard
// reverse+XOR+zlib+NLS envelope, 2 is the zlib+XOR "redirect" variant.
type ContentType int

const (
	ContentStandard ContentType = 1
	ContentRedirect ContentType = 2
)

// Encrypt is the inverse of Decrypt for the given content type.
func Encrypt(data []byte, ct ContentType) []byte {
	switch ct {
	case ContentRedirect:
		z := deflateMax(data)
		xorFirst4(z)
		return z
	default:
		wrapped := reversed(data)
		xorPrefix(wrapped, bcbcXorLen, 0x9C)
		z := deflateMax(wrapped)
		return nlscipher.NewDefault().Encrypt(z)
	}
}
