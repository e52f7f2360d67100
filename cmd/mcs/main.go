// Command mcs decrypts or encrypts a single MCS compiled-script envelope.
//
// Usage:
//
//	mcs d <file>             decrypt <file>, writing <file>.pyc
//	mcs e <file> [redirect]  encrypt <file>, writing <file>.mcs; pass
//	                         "redirect" to use the redirect-table envelope
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/relicmc/mcprecover/internal/envelope"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: mcs d|e <file> [redirect]")
		os.Exit(1)
	}

	mode, path := os.Args[1], os.Args[2]
	var err error
	switch mode {
	case "d":
		err = decryptFile(path)
	case "e":
		ct := envelope.ContentStandard
		if len(os.Args) > 3 && os.Args[3] == "redirect" {
			ct = envelope.ContentRedirect
		}
		err = encryptFile(path, ct)
	default:
		fmt.Fprintln(os.Stderr, "mode must be d or e")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("mcs failed", "mode", mode, "file", path, "error", err)
		os.Exit(1)
	}
}

func decryptFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := envelope.Decrypt(data)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}
	outPath := path + ".pyc"
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}
	slog.Info("decrypted", "output", outPath)
	return nil
}

func encryptFile(path string, ct envelope.ContentType) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := envelope.Encrypt(data, ct)
	outPath := path + ".mcs"
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}
	slog.Info("encrypted", "output", outPath)
	return nil
}
