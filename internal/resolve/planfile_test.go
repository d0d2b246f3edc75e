package resolve_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasmendez/aptgo/internal/resolve"
)

func Test_WritePlanFile_Writes_One_Line_Per_Step(t *testing.T) {
	plan := resolve.Plan{Steps: []resolve.Candidate{
		{Name: "libc6", Version: "2.37-1"},
		{Name: "curl", Version: "8.4.0-1"},
	}}

	path := filepath.Join(t.TempDir(), "install.plan")

	if err := resolve.WritePlanFile(path, plan); err != nil {
		t.Fatalf("WritePlanFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}

	if lines[0] != "libc6 2.37-1" || lines[1] != "curl 8.4.0-1" {
		t.Fatalf("unexpected plan file contents: %q", data)
	}
}

func Test_WritePlanFile_Overwrites_Existing_File_Atomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.plan")

	if err := os.WriteFile(path, []byte("stale contents\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	plan := resolve.Plan{Steps: []resolve.Candidate{{Name: "curl", Version: "8.4.0-1"}}}

	if err := resolve.WritePlanFile(path, plan); err != nil {
		t.Fatalf("WritePlanFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(data) != "curl 8.4.0-1\n" {
		t.Fatalf("got %q, want fully replaced contents", data)
	}
}
