// Command batch_process restores every MCS script under a directory tree
// (or a single file) to its standard compiled-script form, optionally
// disassembling each result with an external pycdas binary if one is on
// PATH.
//
// Usage:
//
//	batch_process <input_folder_or_file> [output_folder] [-seal bundle_path]
//
// When -seal is given alongside an output_folder, the restored tree is
// also sealed into an encrypted bundle_path with internal/bundle, and the
// generated key is logged once (hex-encoded) for the operator to save.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/relicmc/mcprecover/internal/bundle"
	"github.com/relicmc/mcprecover/internal/emitter"
	"github.com/relicmc/mcprecover/internal/envelope"
	"github.com/relicmc/mcprecover/internal/marshal"
)

const maxWorkers = 16

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: batch_process <input_folder_or_file> [output_folder] [-seal bundle_path]")
		os.Exit(1)
	}
	input := os.Args[1]
	var output, sealPath string
	rest := os.Args[2:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == "-seal" && i+1 < len(rest) {
			sealPath = rest[i+1]
			i++
			continue
		}
		if output == "" {
			output = rest[i]
		}
	}

	info, err := os.Stat(input)
	if err != nil {
		slog.Error("stat input", "path", input, "error", err)
		os.Exit(1)
	}

	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	submit := func(inPath, outPath string) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fileHandler(inPath, outPath)
		}()
	}

	if info.IsDir() {
		err := filepath.WalkDir(input, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(input, path)
			if err != nil {
				return err
			}
			var outPath string
			if output != "" {
				outDir := filepath.Join(output, filepath.Dir(rel))
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
				outPath = filepath.Join(outDir, filepath.Base(rel)+".pyc")
			}
			submit(path, outPath)
			return nil
		})
		if err != nil {
			slog.Error("walk input", "path", input, "error", err)
		}
	} else {
		outPath := output
		if output != "" {
			if err := os.MkdirAll(output, 0o755); err != nil {
				slog.Error("create output folder", "path", output, "error", err)
				os.Exit(1)
			}
			outPath = filepath.Join(output, filepath.Base(input)+".pyc")
		}
		submit(input, outPath)
	}

	wg.Wait()

	if sealPath != "" {
		if output == "" {
			slog.Error("-seal requires an output_folder")
			os.Exit(1)
		}
		if err := sealOutput(output, sealPath); err != nil {
			slog.Error("seal output", "error", err)
			os.Exit(1)
		}
	}
}

// sealOutput packages the restored tree into an encrypted bundle with a
// freshly generated key, logging the key once since nothing else retains it.
func sealOutput(outputDir, sealPath string) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := bundle.Seal(sealPath, outputDir, key); err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	slog.Info("sealed output", "bundle", sealPath, "key_hex", hex.EncodeToString(key))
	return nil
}

// fileHandler restores one file and, if pycdas is available, disassembles
// the result alongside it. Errors are logged, never fatal to the batch.
func fileHandler(inputPath, outputPath string) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		slog.Error("read input", "path", inputPath, "error", err)
		return
	}

	slog.Info("processing", "file", filepath.Base(inputPath))
	restored, err := restoreData(data)
	if err != nil {
		slog.Error("restore", "path", inputPath, "error", err)
		return
	}

	if outputPath == "" {
		outputPath = inputPath + ".pyc"
	}
	if err := os.WriteFile(outputPath, restored, 0o644); err != nil {
		slog.Error("write output", "path", outputPath, "error", err)
		return
	}

	if path, err := exec.LookPath("pycdas"); err == nil {
		_ = exec.Command(path, outputPath, "-o", outputPath+"_asm.txt").Run()
	}

	slog.Info("saved restored data", "output", outputPath)
}

// restoreData is the same decrypt-decode-reemit pipeline cmd/anti_confuser
// runs on one file, factored out here so batch_process can drive it across
// a worker pool.
func restoreData(data []byte) ([]byte, error) {
	decrypted, err := envelope.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	root, err := marshal.NewDecoder(decrypted).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	e := emitter.New()
	e.EmitRoot(root)
	return e.Bytes(), nil
}
