package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/lucasmendez/aptgo/internal/config"
	"github.com/lucasmendez/aptgo/internal/control"
	"github.com/lucasmendez/aptgo/internal/install"
	"github.com/lucasmendez/aptgo/internal/resolve"
	"github.com/lucasmendez/aptgo/pkg/store"
)

// TagInstallState is the root-reachable record holding the strong
// installed-status dictionary alongside the catalog, so "aptgo install"
// and "aptgo remove" both see and update the same dictionary root.
const TagInstallState uint8 = 15

// InstallCmd returns the "install" command: resolve the named packages
// against the catalog and drive installation of the resulting plan.
func InstallCmd(cfg config.Config, workDir string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("install", flag.ContinueOnError),
		Usage: "install <package>...",
		Short: "Resolve and install packages",
		Long:  "Resolve the named packages and their dependencies, then install the resulting plan.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execInstall(o, cfg, workDir, args)
		},
	}
}

// RemoveCmd returns the "remove" command: drop packages from the
// installed-status dictionary.
func RemoveCmd(cfg config.Config, workDir string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("remove", flag.ContinueOnError),
		Usage: "remove <package>...",
		Short: "Remove installed packages",
		Long:  "Remove the named packages from the installed-status dictionary.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execRemove(o, cfg, workDir, args)
		},
	}
}

func execInstall(o *IO, cfg config.Config, workDir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aptgo install <package>...")
	}

	s, err := openStore(cfg, workDir, store.ModeReadWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	root := s.GetRoot()
	if store.IsNull(root) {
		return fmt.Errorf("install: store has no catalog; run 'aptgo update' first")
	}

	idx, byName := buildIndex(s, root)

	plan, err := resolve.Resolve(idx, args)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	if cfg.CacheDir != "" {
		if err := resolve.WritePlanFile(cfg.CacheDir+"/install.plan", plan); err != nil {
			return err
		}
	}

	driver := install.NewDriver(s, installStateRoot(s, root))

	var steps []install.Step

	for _, step := range plan.Steps {
		pkg := byName[step.Name+"@"+step.Version]
		steps = append(steps, install.Step{
			Package: pkg,
			Unpack:  func() error { return nil }, // no payload is unpacked; the step only records installed status
		})
	}

	if err := driver.InstallBatch(steps); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	if err := publishInstallState(s, root, driver.InstalledRoot()); err != nil {
		return err
	}

	for _, step := range plan.Steps {
		o.Println("installed", step.Name, step.Version)
	}

	return nil
}

func execRemove(o *IO, cfg config.Config, workDir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aptgo remove <package>...")
	}

	s, err := openStore(cfg, workDir, store.ModeReadWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	root := s.GetRoot()
	if store.IsNull(root) {
		return fmt.Errorf("remove: store has no catalog")
	}

	_, byName := buildIndex(s, root)

	driver := install.NewDriver(s, installStateRoot(s, root))

	var packages []store.Value

	for _, name := range args {
		for key, pkg := range byName {
			if pkgNameOf(key) == name {
				packages = append(packages, pkg)
			}
		}
	}

	if err := driver.RemoveBatch(packages); err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	if err := publishInstallState(s, root, driver.InstalledRoot()); err != nil {
		return err
	}

	for _, name := range args {
		o.Println("removed", name)
	}

	return nil
}

func catalogOf(s *store.Store, root store.Value) store.Value {
	if s.Tag(root) == TagInstallState {
		return s.Ref(root, 0)
	}

	return root
}

func buildIndex(s *store.Store, root store.Value) (resolve.Index, map[string]store.Value) {
	idx := resolve.Index{}
	byName := map[string]store.Value{}

	for _, pkg := range control.Versions(s, catalogOf(s, root)) {
		name := string(s.BlobBytes(s.Ref(pkg, 1)))
		version := string(s.BlobBytes(s.Ref(pkg, 2)))

		idx[name] = append(idx[name], resolve.Candidate{Name: name, Version: version})
		byName[name+"@"+version] = pkg
	}

	return idx, byName
}

func pkgNameOf(key string) string {
	for i, c := range key {
		if c == '@' {
			return key[:i]
		}
	}

	return key
}

func installStateRoot(s *store.Store, root store.Value) store.Value {
	if s.Tag(root) != TagInstallState {
		return store.Null
	}

	return s.Ref(root, 1)
}

// publishInstallState rewraps root (a TagCatalog record, or an existing
// TagInstallState wrapping one) together with dictRoot into a
// TagInstallState record and publishes it.
func publishInstallState(s *store.Store, root, dictRoot store.Value) error {
	catalog := root
	if s.Tag(root) == TagInstallState {
		catalog = s.Ref(root, 0)
	}

	b := s.NewBuilder()

	rec, err := b.NewRecord(TagInstallState, catalog, dictRoot)
	if err != nil {
		return fmt.Errorf("install: build install-state record: %w", err)
	}

	stored, err := b.Store(rec)
	if err != nil {
		return fmt.Errorf("install: materialize install-state record: %w", err)
	}

	if err := s.SetRoot(stored); err != nil {
		return fmt.Errorf("install: publish root: %w", err)
	}

	return nil
}
