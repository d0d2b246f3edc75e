package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/lucasmendez/aptgo/internal/config"
	"github.com/lucasmendez/aptgo/internal/control"
	"github.com/lucasmendez/aptgo/pkg/store"
)

// SearchCmd returns the "search" command: scan the catalog for package
// names containing the given substring.
func SearchCmd(cfg config.Config, workDir string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("search", flag.ContinueOnError),
		Usage: "search <term>",
		Short: "Search indexed packages by name",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execSearch(o, cfg, workDir, args)
		},
	}
}

// ShowCmd returns the "show" command: print full stanza detail for a
// single package name.
func ShowCmd(cfg config.Config, workDir string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <package>",
		Short: "Show package detail",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execShow(o, cfg, workDir, args)
		},
	}
}

func execSearch(o *IO, cfg config.Config, workDir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aptgo search <term>")
	}

	s, err := openStore(cfg, workDir, store.ModeReadOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	root := s.GetRoot()
	if store.IsNull(root) {
		return nil
	}

	term := args[0]

	for _, pkg := range control.Versions(s, catalogOf(s, root)) {
		name := string(s.BlobBytes(s.Ref(pkg, 1)))
		if strings.Contains(name, term) {
			version := string(s.BlobBytes(s.Ref(pkg, 2)))
			o.Println(name, version)
		}
	}

	return nil
}

func execShow(o *IO, cfg config.Config, workDir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aptgo show <package>")
	}

	s, err := openStore(cfg, workDir, store.ModeReadOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	root := s.GetRoot()
	if store.IsNull(root) {
		return fmt.Errorf("show: store has no catalog")
	}

	name := args[0]
	found := false

	for _, pkg := range control.Versions(s, catalogOf(s, root)) {
		if string(s.BlobBytes(s.Ref(pkg, 1))) != name {
			continue
		}

		found = true

		o.Println("Package:", name)
		o.Println("Version:", string(s.BlobBytes(s.Ref(pkg, 2))))
		o.Println("Architecture:", string(s.BlobBytes(s.Ref(pkg, 3))))
		o.Println("Description:", string(s.BlobBytes(s.Ref(pkg, 7))))
	}

	if !found {
		return fmt.Errorf("show: package not found: %s", name)
	}

	return nil
}
