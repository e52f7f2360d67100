package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
	art "github.com/plar/go-adaptive-radix-tree/v2"

	"github.com/relicmc/mcprecover/internal/hashcodec"
)

// fileSource is one file destined for the archive: either a real file on
// disk (abs path set) or a synthesized payload (Virtual set, for an
// auto-generated contents.json).
type fileSource struct {
	FHash   uint32
	AbsPath string
	Virtual []byte
}

func (f *fileSource) read() ([]byte, error) {
	if f.Virtual != nil {
		return f.Virtual, nil
	}
	return os.ReadFile(f.AbsPath)
}

// dirGroup collects every file hashed into the same directory bucket,
// keyed by the signed-sorted file hash so iteration yields them in the
// index table's required order.
type dirGroup struct {
	DHash uint32
	Files art.Tree
}

// contentsEntry mirrors one element of contents.json's "content" array.
type contentsEntry struct {
	Path string `json:"path"`
}

// Pack walks inputDir and writes an MCPK archive to outputPath containing
// every regular file found, grouped and sorted exactly as Unpack expects:
// directory hashes and, within each directory, file hashes, both ascending
// by their signed 32-bit interpretation.
func Pack(inputDir, outputPath string) error {
	info, err := os.Stat(inputDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("archive: %s is not a directory", inputDir)
	}

	var relPaths []string
	err = filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return err
	}

	contentsJSONHash := hashcodec.File("contents.json")
	redirectMcsHash := hashcodec.File("redirect.mcs")
	hasContentsJSON := false
	isScriptArchive := false
	for _, rel := range relPaths {
		d := hashcodec.Dir(rel)
		f := hashcodec.File(filepath.Base(rel))
		if d == 0 && f == contentsJSONHash {
			hasContentsJSON = true
		}
		if d == 0 && f == redirectMcsHash {
			isScriptArchive = true
		}
	}

	dirs := art.New()
	addFile := func(dHash uint32, src *fileSource) {
		key := signedSortKey(dHash)
		v, found := dirs.Search(key)
		var group *dirGroup
		if found {
			group = v.(*dirGroup)
		} else {
			group = &dirGroup{DHash: dHash, Files: art.New()}
			dirs.Insert(key, group)
		}
		group.Files.Insert(signedSortKey(src.FHash), src)
	}

	for _, rel := range relPaths {
		dHash := hashcodec.Dir(rel)
		fHash := hashcodec.File(filepath.Base(rel))
		addFile(dHash, &fileSource{FHash: fHash, AbsPath: filepath.Join(inputDir, filepath.FromSlash(rel))})
	}

	if !isScriptArchive && !hasContentsJSON {
		entries := make([]contentsEntry, len(relPaths))
		for i, p := range relPaths {
			entries[i] = contentsEntry{Path: p}
		}
		payload, err := json.MarshalIndent(map[string]any{"content": entries}, "", "    ")
		if err != nil {
			return err
		}
		addFile(0, &fileSource{FHash: contentsJSONHash, Virtual: payload})
	}

	type orderedDir struct {
		dHash uint32
		files []*fileSource
	}
	var ordered []orderedDir
	dirs.ForEach(func(n art.Node) bool {
		group := n.Value().(*dirGroup)
		var files []*fileSource
		group.Files.ForEach(func(fn art.Node) bool {
			files = append(files, fn.Value().(*fileSource))
			return true
		}, art.TraverseLeaf)
		ordered = append(ordered, orderedDir{dHash: group.DHash, files: files})
		return true
	}, art.TraverseLeaf)

	dirTableSize := uint32(len(ordered) * dirEntrySize)
	indexBaseOffset := uint32(headerSize) + dirTableSize

	numFiles := 0
	for _, od := range ordered {
		numFiles += len(od.files)
	}
	indexTableSize := uint32(numFiles * indexEntrySize)
	dataBaseOffset := indexBaseOffset + indexTableSize

	tmp := outputPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.Write(make([]byte, headerSize)); err != nil {
		return err
	}

	relOffset := uint32(0)
	for _, od := range ordered {
		entry := dirEntry{DirHash: od.dHash, FirstIndexOffset: relOffset, EntryCount: uint32(len(od.files))}
		if _, err := out.Write(entry.encode()); err != nil {
			return err
		}
		relOffset += uint32(len(od.files)) * indexEntrySize
	}

	type placedFile struct {
		indexPos int64
		src      *fileSource
	}
	var placed []placedFile
	for _, od := range ordered {
		for _, f := range od.files {
			pos, err := out.Seek(0, io.SeekCurrent)
			if err != nil {
				return err
			}
			entry := indexEntry{FileHash: f.FHash}
			if _, err := out.Write(entry.encode()); err != nil {
				return err
			}
			placed = append(placed, placedFile{indexPos: pos, src: f})
		}
	}

	type fileMeta struct {
		offset, cSize, uSize uint32
	}
	metas := make([]fileMeta, len(placed))
	for i, p := range placed {
		data, err := p.src.read()
		if err != nil {
			return err
		}

		pos, err := out.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		fOffset := uint32(pos) - dataBaseOffset

		var cData []byte
		uSize := uint32(len(data))
		if isScriptArchive {
			uSize = scriptUSize
			cData = data
		} else {
			cData, err = deflate(data)
			if err != nil {
				return err
			}
		}
		if _, err := out.Write(cData); err != nil {
			return err
		}
		metas[i] = fileMeta{fOffset, uint32(len(cData)), uSize}
	}

	for i, p := range placed {
		if _, err := out.Seek(p.indexPos+4, io.SeekStart); err != nil {
			return err
		}
		var b [12]byte
		binary.LittleEndian.PutUint32(b[0:4], metas[i].offset)
		binary.LittleEndian.PutUint32(b[4:8], metas[i].cSize)
		binary.LittleEndian.PutUint32(b[8:12], metas[i].uSize)
		if _, err := out.Write(b[:]); err != nil {
			return err
		}
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := out.Write(writeHeader(dirTableSize, indexBaseOffset, dataBaseOffset)); err != nil {
		return err
	}

	if _, err := out.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if _, err := out.Write(make([]byte, trailerSize)); err != nil {
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, outputPath)
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
