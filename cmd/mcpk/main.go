// Command mcpk packs a directory into an MCPK archive or unpacks one back
// out, prompting interactively when run with no arguments (matching the
// reference tool's menu), or non-interactively with explicit subcommands.
//
// Usage:
//
//	mcpk pack <input_dir> <output.mcpk>
//	mcpk unpack <input.mcpk> <output_dir>
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/relicmc/mcprecover/archive"
	"github.com/relicmc/mcprecover/internal/errs"
)

func main() {
	if len(os.Args) >= 2 {
		if err := runArgs(os.Args[1:]); err != nil {
			slog.Error("mcpk failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if err := runInteractive(); err != nil {
		slog.Error("mcpk failed", "error", err)
		os.Exit(1)
	}
}

func runArgs(args []string) error {
	switch args[0] {
	case "pack":
		if len(args) < 3 {
			return fmt.Errorf("usage: mcpk pack <input_dir> <output.mcpk>")
		}
		return packDir(args[1], args[2])
	case "unpack":
		if len(args) < 3 {
			return fmt.Errorf("usage: mcpk unpack <input.mcpk> <output_dir>")
		}
		return unpackFile(args[1], args[2])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runInteractive() error {
	in := bufio.NewScanner(os.Stdin)
	fmt.Print("[*] MCPK Utility\n[*] 1. Unpack MCPK\n[*] 2. Pack Directory to MCPK\n[*] Choice (1/2): ")
	in.Scan()
	choice := strings.TrimSpace(in.Text())

	switch choice {
	case "1":
		fmt.Print("[*] Input MCPK file path: ")
		in.Scan()
		mcpkPath := strings.TrimSpace(in.Text())

		fmt.Print("[*] Input output directory (Enter to use default): ")
		in.Scan()
		outDir := strings.TrimSpace(in.Text())
		if outDir == "" {
			base := filepath.Base(mcpkPath)
			outDir = strings.TrimSuffix(base, filepath.Ext(base)) + "_unpacked"
		}
		return unpackFile(mcpkPath, outDir)

	case "2":
		fmt.Print("[*] Input directory to pack: ")
		in.Scan()
		inDir := strings.TrimSpace(in.Text())

		fmt.Print("[*] Input output MCPK file path: ")
		in.Scan()
		outPath := strings.TrimSpace(in.Text())
		if outPath == "" {
			outPath = filepath.Base(filepath.Clean(inDir))
		}
		if !strings.HasSuffix(outPath, ".mcpk") {
			outPath += ".mcpk"
		}
		return packDir(inDir, outPath)

	default:
		return fmt.Errorf("invalid choice %q", choice)
	}
}

func packDir(inputDir, outputPath string) error {
	if err := archive.Pack(inputDir, outputPath); err != nil {
		return err
	}
	slog.Info("packed", "input", inputDir, "output", outputPath)
	return nil
}

func unpackFile(inputPath, outputDir string) error {
	sink := errs.Sink(func(w errs.Warning) {
		slog.Warn("recovery warning", "kind", w.Kind, "path", w.Path, "error", w.Err)
	})
	if err := archive.Unpack(inputPath, outputDir, sink); err != nil {
		return err
	}
	slog.Info("unpacked", "input", inputPath, "output", outputDir)
	return nil
}
