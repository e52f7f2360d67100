// Package archive implements the MCPK container format: a 57-byte header,
// a directory table, a two-level hash index, and a data region, read with
// a memory-mapped file and built with an in-memory sorted index tree.
package archive

import (
	"encoding/binary"

	"github.com/relicmc/mcprecover/internal/errs"
)

const (
	// Magic is the 4-byte signature every MCPK file starts with.
	Magic = "MCPK"

	headerSize     = 57
	dirEntrySize   = 12
	indexEntrySize = 16
	trailerSize    = 129

	// scriptUSize marks an entry whose uncompressed size was never
	// recorded because its payload is stored unencoded (a script archive's
	// per-file data is the undecrypted MCS stream, not a zlib member).
	scriptUSize = 0x7FFFFFFF
)

var headerConst = [8]byte{0x00, 0x00, 0x00, 0x00, 0x96, 0x53, 0xDA, 0x41}
var minecraftTag = [10]byte{'m', 'i', 'n', 'e', 'c', 'r', 'a', 'f', 't', 0x00}

// header is the fixed 57-byte MCPK header.
type header struct {
	DirTableOffset  uint32
	IndexBaseOffset uint32
	DataBaseOffset  uint32
	DirTableSize    uint32
}

func parseHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, errs.New(errs.ShortRead, nil)
	}
	if string(b[0:4]) != Magic {
		return header{}, errs.New(errs.InvalidMagic, nil)
	}
	return header{
		DirTableOffset:  binary.LittleEndian.Uint32(b[12:16]),
		IndexBaseOffset: binary.LittleEndian.Uint32(b[16:20]),
		DataBaseOffset:  binary.LittleEndian.Uint32(b[20:24]),
		DirTableSize:    binary.LittleEndian.Uint32(b[48:52]),
	}, nil
}

// writeHeader renders the 57-byte header with dir_table_offset fixed at
// headerSize, as every packed archive this codec produces places the
// directory table immediately after the header.
func writeHeader(dirTableSize, indexBaseOffset, dataBaseOffset uint32) []byte {
	b := make([]byte, headerSize)
	copy(b[0:4], Magic)
	copy(b[4:12], headerConst[:])
	binary.LittleEndian.PutUint32(b[12:16], headerSize)
	binary.LittleEndian.PutUint32(b[16:20], indexBaseOffset)
	binary.LittleEndian.PutUint32(b[20:24], dataBaseOffset)
	copy(b[24:34], minecraftTag[:])
	// b[34:48] stays zero; b[52:57] stays zero.
	binary.LittleEndian.PutUint32(b[48:52], dirTableSize)
	return b
}

// dirEntry is one 12-byte directory table row.
type dirEntry struct {
	DirHash          uint32
	FirstIndexOffset uint32 // relative to IndexBaseOffset
	EntryCount       uint32
}

func parseDirEntry(b []byte) dirEntry {
	return dirEntry{
		DirHash:          binary.LittleEndian.Uint32(b[0:4]),
		FirstIndexOffset: binary.LittleEndian.Uint32(b[4:8]),
		EntryCount:       binary.LittleEndian.Uint32(b[8:12]),
	}
}

func (e dirEntry) encode() []byte {
	b := make([]byte, dirEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.DirHash)
	binary.LittleEndian.PutUint32(b[4:8], e.FirstIndexOffset)
	binary.LittleEndian.PutUint32(b[8:12], e.EntryCount)
	return b
}

// indexEntry is one 16-byte file index row.
type indexEntry struct {
	FileHash uint32
	Offset   uint32 // relative to DataBaseOffset
	CSize    uint32
	USize    uint32
}

func parseIndexEntry(b []byte) indexEntry {
	return indexEntry{
		FileHash: binary.LittleEndian.Uint32(b[0:4]),
		Offset:   binary.LittleEndian.Uint32(b[4:8]),
		CSize:    binary.LittleEndian.Uint32(b[8:12]),
		USize:    binary.LittleEndian.Uint32(b[12:16]),
	}
}

func (e indexEntry) encode() []byte {
	b := make([]byte, indexEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.FileHash)
	binary.LittleEndian.PutUint32(b[4:8], e.Offset)
	binary.LittleEndian.PutUint32(b[8:12], e.CSize)
	binary.LittleEndian.PutUint32(b[12:16], e.USize)
	return b
}

// signedSortKey renders h as a 4-byte big-endian key with the sign bit
// flipped, so that ascending unsigned byte order equals ascending order of
// int32(h) — the sort MCPK's directory and index tables require.
func signedSortKey(h uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h)
	b[0] ^= 0x80
	return b[:]
}
