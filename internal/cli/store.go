package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/lucasmendez/aptgo/internal/config"
	"github.com/lucasmendez/aptgo/pkg/store"
)

var errStoreSubcommandRequired = errors.New("usage: aptgo store <open|gc|stat|shell>")

// StoreCmd returns the "store" command, dispatching to one of its four
// subcommands the way a single pflag.FlagSet can't: each subcommand has
// its own, differently-shaped positional arguments.
func StoreCmd(cfg config.Config, workDir string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("store", flag.ContinueOnError),
		Usage: "store <open|gc|stat|shell>",
		Short: "Inspect or maintain the struct-store",
		Long:  "Open, garbage-collect, inspect, or interactively browse the struct-store file.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errStoreSubcommandRequired
			}

			switch args[0] {
			case "open":
				return execStoreOpen(o, cfg, workDir)
			case "gc":
				return execStoreGC(o, cfg, workDir)
			case "stat":
				return execStoreStat(o, cfg, workDir)
			case "shell":
				return execStoreShell(o, cfg, workDir)
			default:
				return fmt.Errorf("%w (got %q)", errStoreSubcommandRequired, args[0])
			}
		},
	}
}

func resolveStorePath(cfg config.Config, workDir string) string {
	if filepath.IsAbs(cfg.StorePath) {
		return cfg.StorePath
	}

	return filepath.Join(workDir, cfg.StorePath)
}

func openStore(cfg config.Config, workDir string, mode store.Mode) (*store.Store, error) {
	path := resolveStorePath(cfg, workDir)

	s, err := store.Open(store.Options{Path: path, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	return s, nil
}

func execStoreOpen(o *IO, cfg config.Config, workDir string) error {
	s, err := openStore(cfg, workDir, store.ModeTruncate)
	if err != nil {
		return err
	}
	defer s.Close()

	o.Println("created store at", resolveStorePath(cfg, workDir))

	return nil
}

func execStoreGC(o *IO, cfg config.Config, workDir string) error {
	s, err := openStore(cfg, workDir, store.ModeReadWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.GC(); err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	o.Println("gc complete")

	return nil
}

func execStoreStat(o *IO, cfg config.Config, workDir string) error {
	s, err := openStore(cfg, workDir, store.ModeReadOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	root := s.GetRoot()

	if store.IsNull(root) {
		o.Println("root: null")

		return nil
	}

	o.Printf("root: tag=%d len=%d\n", s.Tag(root), s.Len(root))

	return nil
}

func execStoreShell(o *IO, cfg config.Config, workDir string) error {
	s, err := openStore(cfg, workDir, store.ModeReadWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	current := s.GetRoot()

	for {
		text, err := line.Prompt("aptgo store> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("read line: %w", err)
		}

		line.AppendHistory(text)

		if stop := runShellCommand(o, s, &current, text); stop {
			return nil
		}
	}
}

func runShellCommand(o *IO, s *store.Store, current *store.Value, text string) (stop bool) {
	switch text {
	case "quit", "exit":
		return true
	case "root":
		*current = s.GetRoot()
		printShellValue(o, s, *current)
	case "gc":
		if err := s.GC(); err != nil {
			o.ErrPrintln("error:", err)

			break
		}

		o.Println("gc complete")
	case "":
	default:
		printShellValue(o, s, *current)
	}

	return false
}

func printShellValue(o *IO, s *store.Store, v store.Value) {
	if store.IsNull(v) {
		o.Println("null")

		return
	}

	if n, ok := store.ToInt(v); ok {
		o.Printf("int %d\n", n)

		return
	}

	if s.IsBlob(v) {
		o.Printf("blob %d bytes: %q\n", s.Len(v), string(s.BlobBytes(v)))

		return
	}

	o.Printf("record tag=%d len=%d\n", s.Tag(v), s.Len(v))
}
