// Command anti_confuser restores one scrambled MCS script to a standard
// compiled-script image that a stock disassembler can load.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/relicmc/mcprecover/internal/emitter"
	"github.com/relicmc/mcprecover/internal/envelope"
	"github.com/relicmc/mcprecover/internal/marshal"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: anti_confuser <input.mcs>")
		os.Exit(1)
	}
	if err := run(os.Args[1]); err != nil {
		slog.Error("restore failed", "file", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(inputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}

	decrypted, err := envelope.Decrypt(data)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	root, err := marshal.NewDecoder(decrypted).Decode()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	e := emitter.New()
	e.EmitRoot(root)

	outPath := inputPath + ".pyc"
	if err := os.WriteFile(outPath, e.Bytes(), 0o644); err != nil {
		return err
	}
	slog.Info("restored", "output", outPath)
	return nil
}
