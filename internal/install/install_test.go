package install_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/lucasmendez/aptgo/internal/install"
	"github.com/lucasmendez/aptgo/pkg/store"
)

func openTempStore(t *testing.T) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.struct")

	s, err := store.Open(store.Options{Path: path, Mode: store.ModeTruncate, MaxSize: 16 << 20})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func mustPackage(t *testing.T, s *store.Store, name string) store.Value {
	t.Helper()

	b := s.NewBuilder()

	rec, err := b.NewRecord(70, b.NewBlob([]byte(name)))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	stored, err := b.Store(rec)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	return stored
}

func Test_InstallBatch_Records_Each_Successfully_Unpacked_Package(t *testing.T) {
	s := openTempStore(t)
	d := install.NewDriver(s, store.Null)

	pkg := mustPackage(t, s, "curl")

	err := d.InstallBatch([]install.Step{
		{Package: pkg, Unpack: func() error { return nil }},
	})
	if err != nil {
		t.Fatalf("InstallBatch: %v", err)
	}

	if !d.IsInstalled(pkg) {
		t.Fatalf("IsInstalled(pkg) = false, want true")
	}
}

func Test_InstallBatch_Continues_Past_A_Failed_Step_And_Aggregates_Errors(t *testing.T) {
	s := openTempStore(t)
	d := install.NewDriver(s, store.Null)

	good := mustPackage(t, s, "curl")
	bad := mustPackage(t, s, "broken-pkg")

	boom := errors.New("boom")

	err := d.InstallBatch([]install.Step{
		{Package: bad, Unpack: func() error { return boom }},
		{Package: good, Unpack: func() error { return nil }},
	})
	if err == nil {
		t.Fatalf("InstallBatch succeeded, want aggregated error")
	}

	if !d.IsInstalled(good) {
		t.Fatalf("good package not installed after a sibling failure")
	}

	if d.IsInstalled(bad) {
		t.Fatalf("bad package marked installed despite Unpack failure")
	}
}

func Test_RemoveBatch_Clears_Installed_Status(t *testing.T) {
	s := openTempStore(t)
	d := install.NewDriver(s, store.Null)

	pkg := mustPackage(t, s, "curl")

	if err := d.InstallBatch([]install.Step{{Package: pkg, Unpack: func() error { return nil }}}); err != nil {
		t.Fatalf("InstallBatch: %v", err)
	}

	if err := d.RemoveBatch([]store.Value{pkg}); err != nil {
		t.Fatalf("RemoveBatch: %v", err)
	}

	if d.IsInstalled(pkg) {
		t.Fatalf("IsInstalled(pkg) = true after RemoveBatch, want false")
	}
}
