package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zlib"

	"github.com/relicmc/mcprecover/internal/envelope"
	"github.com/relicmc/mcprecover/internal/errs"
	"github.com/relicmc/mcprecover/internal/hashcodec"
	"github.com/relicmc/mcprecover/internal/marshal"
)

type dirInfo struct {
	entries map[uint32]indexEntry
}

// Unpack reads the MCPK archive at archivePath and writes its contents
// under outputDir. When the archive carries a contents.json manifest, every
// listed path is restored at its original location; otherwise each entry is
// dumped under an 8-digit hex directory/file name, with script entries'
// filenames recovered by peeking into their decrypted code object. Non-fatal
// problems (a missing index entry, a zlib failure) are reported to warn
// instead of aborting the whole unpack.
func Unpack(archivePath, outputDir string, warn errs.Sink) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	defer m.Unmap()

	hdr, err := parseHeader(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	dirCount := int((hdr.IndexBaseOffset - hdr.DirTableOffset) / dirEntrySize)
	dirMap := make(map[uint32]dirInfo, dirCount)
	dirOrder := make([]uint32, 0, dirCount)

	maxRelOffset := uint32(0)
	lastDirFiles := uint32(0)
	pos := hdr.DirTableOffset
	for i := 0; i < dirCount; i++ {
		de := parseDirEntry(m[pos : pos+dirEntrySize])
		pos += dirEntrySize
		if de.FirstIndexOffset >= maxRelOffset {
			maxRelOffset = de.FirstIndexOffset
			lastDirFiles = de.EntryCount
		}

		entries := make(map[uint32]indexEntry, de.EntryCount)
		ipos := hdr.IndexBaseOffset + de.FirstIndexOffset
		for j := uint32(0); j < de.EntryCount; j++ {
			ie := parseIndexEntry(m[ipos : ipos+indexEntrySize])
			entries[ie.FileHash] = ie
			ipos += indexEntrySize
		}
		dirMap[de.DirHash] = dirInfo{entries: entries}
		dirOrder = append(dirOrder, de.DirHash)
	}
	dataBaseOffset := hdr.IndexBaseOffset + maxRelOffset + lastDirFiles*indexEntrySize

	contentsHash := hashcodec.File("contents.json")
	redirectHash := hashcodec.File("redirect.mcs")

	var contentsList []contentsEntry
	haveContents := false
	isScriptArchive := false

	if dir0, ok := dirMap[0]; ok {
		if ie, ok := dir0.entries[contentsHash]; ok {
			raw := sliceAt(m, dataBaseOffset, ie)
			data, err := inflateZlib(raw)
			if err != nil {
				data = raw
			}
			if err := os.WriteFile(filepath.Join(outputDir, "contents.json"), data, 0o644); err != nil {
				return err
			}

			var parsed struct {
				Content []contentsEntry `json:"content"`
			}
			if err := json.Unmarshal(data, &parsed); err == nil && parsed.Content != nil {
				contentsList = parsed.Content
				haveContents = true
			} else {
				var flat []contentsEntry
				if err := json.Unmarshal(data, &flat); err == nil {
					contentsList = flat
					haveContents = true
				}
			}
		}
		if ie, ok := dir0.entries[redirectHash]; ok {
			isScriptArchive = true
			raw := sliceAt(m, dataBaseOffset, ie)
			decrypted, err := envelope.Decrypt(raw)
			if err != nil {
				warn.Emit(errs.UnrecognizedEnvelope, "redirect.mcs", err)
				decrypted = raw
			}
			if err := os.WriteFile(filepath.Join(outputDir, "redirect.mcs"), decrypted, 0o644); err != nil {
				return err
			}
		}
	}

	if haveContents {
		for _, ce := range contentsList {
			norm := filepath.ToSlash(strings.ReplaceAll(ce.Path, "\\", "/"))
			dHash := hashcodec.Dir(norm)
			base := norm
			if idx := strings.LastIndex(norm, "/"); idx >= 0 {
				base = norm[idx+1:]
			}
			fHash := hashcodec.File(base)

			info, ok := dirMap[dHash]
			if !ok {
				warn.Emit(errs.MissingEntry, norm, nil)
				continue
			}
			ie, ok := info.entries[fHash]
			if !ok {
				warn.Emit(errs.MissingEntry, norm, nil)
				continue
			}

			raw := sliceAt(m, dataBaseOffset, ie)
			target := filepath.Join(outputDir, filepath.FromSlash(norm))
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}

			data, err := inflateZlib(raw)
			if err != nil {
				warn.Emit(errs.ZlibError, norm, err)
				data = raw
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return err
			}
		}
		return nil
	}

	for _, dHash := range dirOrder {
		info := dirMap[dHash]
		outDir := filepath.Join(outputDir, fmt.Sprintf("%08X", dHash))

		for fHash, ie := range info.entries {
			raw := sliceAt(m, dataBaseOffset, ie)
			name := fmt.Sprintf("%08X", fHash)
			target := filepath.Join(outDir, name)
			data := raw

			if !isScriptArchive {
				if decoded, err := inflateZlib(raw); err != nil {
					warn.Emit(errs.ZlibError, name, err)
				} else {
					data = decoded
				}
			} else if recovered := recoverScriptName(raw); recovered != "" {
				recovered = strings.ReplaceAll(recovered, ".py", ".mcs")
				target = filepath.Join(outputDir, filepath.FromSlash(recovered))
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// recoverScriptName decrypts raw as an MCS envelope and marshal-decodes its
// root object, returning the embedded code object's filename if one could
// be recovered. A failure at any stage yields "", which tells the caller to
// fall back to the hash-named path; the bytes written to disk are always
// raw (still encrypted), matching the format's own redirect-table scheme.
func recoverScriptName(raw []byte) string {
	decrypted, err := envelope.Decrypt(raw)
	if err != nil {
		return ""
	}
	dec := marshal.NewDecoder(decrypted)
	root, err := dec.Decode()
	if err != nil || root.Kind != marshal.KindCode || root.Code == nil {
		return ""
	}
	name := root.Code.FilenameBytes()
	if len(name) == 0 {
		return ""
	}
	return string(name)
}

func sliceAt(m []byte, dataBaseOffset uint32, ie indexEntry) []byte {
	start := dataBaseOffset + ie.Offset
	end := start + ie.CSize
	if int(end) > len(m) {
		end = uint32(len(m))
	}
	return m[start:end]
}

func inflateZlib(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
