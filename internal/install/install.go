// Package install walks a resolved plan and drives package installation,
// tracking installed-package status in a strong struct-store dictionary
// keyed by package-identity counted-tag id.
//
// Failures during a batch are collected with multierr rather than
// aborting the whole batch, matching apt's "skip package X, continue with
// the rest" convention; only store-level errors (programmer bugs,
// corruption) abort immediately, the same "operational vs fatal"
// distinction the store package's own error classification draws.
package install

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/lucasmendez/aptgo/pkg/store"
)

// Step is one unit of installation work: a package-identity record (as
// produced by control.Index, tag control.TagPackageVersion) plus the function
// that unpacks its payload.
type Step struct {
	Package store.Value
	Unpack  func() error // runs the actual unpack/maintainer-script work
}

// Driver installs a batch of Steps against a store, recording each
// successfully installed package in a strong dictionary keyed by the
// package record's identity so later runs can query installed status in
// O(1) without rescanning the plan.
type Driver struct {
	store     *store.Store
	installed *store.DictHandle
}

// NewDriver wraps s, using root as the current installed-status
// dictionary's root (Null for a fresh store).
func NewDriver(s *store.Store, root store.Value) *Driver {
	return &Driver{store: s, installed: store.NewDictHandle(s, store.DictStrong, root)}
}

// InstalledRoot returns the current root of the installed-status
// dictionary, for the caller to thread back into a larger record
// reachable from the store's own root.
func (d *Driver) InstalledRoot() store.Value {
	return d.installed.Root()
}

// IsInstalled reports whether pkg is already recorded as installed.
func (d *Driver) IsInstalled(pkg store.Value) bool {
	_, ok := d.installed.Get(pkg)
	return ok
}

// InstallBatch runs every step's Unpack function, recording success in the
// installed-status dictionary and aggregating per-step Unpack failures with
// multierr so one broken package doesn't block the rest of the batch. A
// failure to record installed status is a store-level error and stops the
// batch at once.
func (d *Driver) InstallBatch(steps []Step) error {
	var errs error

	for _, step := range steps {
		fatal, err := d.installOne(step)
		if err != nil {
			errs = multierr.Append(errs, err)

			if fatal {
				return errs
			}
		}
	}

	return errs
}

// installOne reports true alongside a store-level error, which stops the batch.
func (d *Driver) installOne(step Step) (bool, error) {
	if err := step.Unpack(); err != nil {
		return false, fmt.Errorf("install: unpack %v: %w", step.Package, err)
	}

	if err := d.installed.Set(step.Package, store.FromInt(1)); err != nil {
		return true, fmt.Errorf("install: record installed status for %v: %w", step.Package, err)
	}

	return false, nil
}

// RemoveBatch deletes each package from the installed-status dictionary.
// Del fails only with a store-level error, which stops the batch at once.
func (d *Driver) RemoveBatch(packages []store.Value) error {
	for _, pkg := range packages {
		if _, err := d.installed.Del(pkg); err != nil {
			return fmt.Errorf("install: remove %v: %w", pkg, err)
		}
	}

	return nil
}
