package cli

import (
	"bytes"
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/lucasmendez/aptgo/internal/config"
	"github.com/lucasmendez/aptgo/internal/control"
	"github.com/lucasmendez/aptgo/internal/fetch"
	"github.com/lucasmendez/aptgo/pkg/fs"
	"github.com/lucasmendez/aptgo/pkg/store"
)

// UpdateCmd returns the "update" command: refresh repository indices via
// internal/fetch and merge them into the store's intern table.
func UpdateCmd(cfg config.Config, workDir string) *Command {
	flags := flag.NewFlagSet("update", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "update",
		Short: "Refresh repository indices",
		Long:  "Download each configured source's Packages index and merge it into the struct-store.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execUpdate(ctx, o, cfg, workDir)
		},
	}
}

func execUpdate(ctx context.Context, o *IO, cfg config.Config, workDir string) error {
	s, err := openStore(cfg, workDir, store.ModeReadWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	client := fetch.NewClient(fs.NewReal())

	b := s.NewBuilder()

	root := s.GetRoot()

	var (
		internRoot store.Value
		versions   []store.Value
	)

	if !store.IsNull(root) {
		catalog := catalogOf(s, root)
		internRoot = control.InternRoot(s, catalog)
		versions = control.Versions(s, catalog)
	}

	interner := store.NewInternHandle(s, internRoot)

	total := 0

	for _, src := range cfg.Sources {
		dest := cfg.CacheDir + "/" + sourceCacheName(src)

		result, err := client.Fetch(ctx, src, dest, "")
		if err != nil {
			return fmt.Errorf("update %s: %w", src, err)
		}

		o.Println(src, result)

		if result == fetch.NotFound {
			continue
		}

		data, err := fs.NewReal().ReadFile(dest)
		if err != nil {
			return fmt.Errorf("update: read cached index %s: %w", dest, err)
		}

		stanzas, err := control.ParseAll(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("update: parse %s: %w", dest, err)
		}

		indexed, err := control.Index(b, interner, stanzas)
		if err != nil {
			return fmt.Errorf("update: index %s: %w", dest, err)
		}

		versions = append(versions, indexed...)
		total += len(stanzas)
	}

	catalog, err := control.BuildCatalog(b, versions, interner.Finish())
	if err != nil {
		return fmt.Errorf("update: build catalog: %w", err)
	}

	stored, err := b.Store(catalog)
	if err != nil {
		return fmt.Errorf("update: materialize catalog: %w", err)
	}

	if err := s.SetRoot(stored); err != nil {
		return fmt.Errorf("update: publish root: %w", err)
	}

	o.Println("indexed", total, "package versions")

	return nil
}

func sourceCacheName(src string) string {
	h := uint32(2166136261)
	for i := range len(src) {
		h ^= uint32(src[i])
		h *= 16777619
	}

	return fmt.Sprintf("%08x.packages", h)
}
