// Package bundle seals a directory of recovered outputs (decompiled scripts,
// recovered filenames, unpacked archive contents) into a single encrypted
// container for moving off the analysis host, and opens one back up.
//
// The wire format is a sequence of entries, each a path header followed by
// the file's content split into chunkSize chunks; each chunk is independently
// compressed, encrypted, and authenticated:
//
//	entry   := pathHeader chunk*
//	pathHeader := pathLen(u32) path(pathLen) fileSize(u64)
//	chunk   := nonce(16) size(u32) ciphertext(size) mac(16)
//
// A zero-length pathLen marks the end of the bundle.
package bundle

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/s2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/poly1305"
)

const chunkSize = 1 << 20 // 1MB

const keySize = 32

// Seal walks srcDir and writes every regular file it contains into dstPath
// as one sealed bundle, keyed by masterKey. Paths inside the bundle are
// stored relative to srcDir using forward slashes.
func Seal(dstPath, srcDir string, masterKey []byte) error {
	if len(masterKey) != keySize {
		return fmt.Errorf("bundle: master key must be %d bytes", keySize)
	}

	df, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer df.Close()
	bw := bufio.NewWriter(df)

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		return sealFile(bw, block, masterKey, rel, path)
	})
	if err != nil {
		return err
	}

	if err := writePathHeader(bw, "", 0); err != nil {
		return err
	}
	return bw.Flush()
}

func sealFile(bw *bufio.Writer, block cipher.Block, masterKey []byte, rel, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	srcSize := fi.Size()
	if err := writePathHeader(bw, rel, srcSize); err != nil {
		return err
	}

	var data []byte
	if srcSize > 0 {
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return err
		}
		defer m.Unmap()
		data = m
	}

	var (
		nonce      = make([]byte, 16)
		polyKey    [32]byte
		mac        [16]byte
		sizeBuf    [4]byte
		compressed []byte
	)

	for off := int64(0); off < srcSize; off += chunkSize {
		end := off + chunkSize
		if end > srcSize {
			end = srcSize
		}
		compressed = s2.Encode(compressed[:0], data[off:end])

		if _, err := rand.Read(nonce); err != nil {
			return err
		}
		h := hkdf.New(sha256.New, masterKey, nonce, []byte("poly1305"))
		if _, err := io.ReadFull(h, polyKey[:]); err != nil {
			return err
		}

		stream := cipher.NewCTR(block, nonce)
		stream.XORKeyStream(compressed, compressed)
		poly1305.Sum(&mac, compressed, &polyKey)

		if _, err := bw.Write(nonce); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(compressed)))
		if _, err := bw.Write(sizeBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(compressed); err != nil {
			return err
		}
		if _, err := bw.Write(mac[:]); err != nil {
			return err
		}
	}
	return nil
}

func writePathHeader(bw *bufio.Writer, rel string, size int64) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(rel)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(rel) > 0 {
		if _, err := bw.WriteString(rel); err != nil {
			return err
		}
		var sizeBuf [8]byte
		binary.LittleEndian.PutUint64(sizeBuf[:], uint64(size))
		if _, err := bw.Write(sizeBuf[:]); err != nil {
			return err
		}
	}
	return nil
}

// Unseal reads a bundle written by Seal and recreates its files under
// dstDir, which is created if it does not already exist.
func Unseal(dstDir, srcPath string, masterKey []byte) error {
	if len(masterKey) != keySize {
		return fmt.Errorf("bundle: master key must be %d bytes", keySize)
	}

	sf, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer sf.Close()
	br := bufio.NewReader(sf)

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}

	for {
		rel, done, size, err := readPathHeader(br)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := unsealFile(br, block, masterKey, filepath.Join(dstDir, filepath.FromSlash(rel)), size); err != nil {
			return fmt.Errorf("bundle: %s: %w", rel, err)
		}
	}
}

func readPathHeader(br *bufio.Reader) (rel string, done bool, size int64, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(br, lenBuf[:]); err != nil {
		return "", false, 0, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return "", true, 0, nil
	}
	path := make([]byte, n)
	if _, err = io.ReadFull(br, path); err != nil {
		return "", false, 0, err
	}
	var sizeBuf [8]byte
	if _, err = io.ReadFull(br, sizeBuf[:]); err != nil {
		return "", false, 0, err
	}
	return string(path), false, int64(binary.LittleEndian.Uint64(sizeBuf[:])), nil
}

// unsealFile reads exactly the chunks written for a file of the given size
// — ceil(size/chunkSize), or zero for an empty file — so a file whose size
// is an exact multiple of chunkSize is never mistaken for having one more
// chunk than it does.
func unsealFile(br *bufio.Reader, block cipher.Block, masterKey []byte, dstPath string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()
	bw := bufio.NewWriter(out)
	defer bw.Flush()

	var (
		nonce      [16]byte
		chunkSize4 [4]byte
		polyKey    [32]byte
		mac        [16]byte
		decoded    []byte
	)

	numChunks := int64(0)
	if size > 0 {
		numChunks = (size + chunkSize - 1) / chunkSize
	}

	for c := int64(0); c < numChunks; c++ {
		if _, err := io.ReadFull(br, nonce[:]); err != nil {
			return err
		}
		if _, err := io.ReadFull(br, chunkSize4[:]); err != nil {
			return err
		}
		clen := binary.LittleEndian.Uint32(chunkSize4[:])

		ciphertext := make([]byte, clen)
		if _, err := io.ReadFull(br, ciphertext); err != nil {
			return err
		}
		var providedMac [16]byte
		if _, err := io.ReadFull(br, providedMac[:]); err != nil {
			return err
		}

		h := hkdf.New(sha256.New, masterKey, nonce[:], []byte("poly1305"))
		if _, err := io.ReadFull(h, polyKey[:]); err != nil {
			return err
		}
		poly1305.Sum(&mac, ciphertext, &polyKey)
		if subtle.ConstantTimeCompare(mac[:], providedMac[:]) != 1 {
			return fmt.Errorf("authentication failed")
		}

		decrypted := make([]byte, len(ciphertext))
		stream := cipher.NewCTR(block, nonce[:])
		stream.XORKeyStream(decrypted, ciphertext)

		decoded, err = s2.Decode(decoded[:0], decrypted)
		if err != nil {
			return err
		}
		if _, err := bw.Write(decoded); err != nil {
			return err
		}
	}
	return bw.Flush()
}
