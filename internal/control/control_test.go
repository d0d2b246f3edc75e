package control_test

import (
	"strings"
	"testing"

	"github.com/lucasmendez/aptgo/internal/control"
)

func Test_ParseAll_Splits_Source_Into_Stanzas_On_Blank_Lines(t *testing.T) {
	src := strings.Join([]string{
		"Package: curl",
		"Version: 8.4.0-1",
		"Depends: libc6 (>= 2.34), libssl3",
		"",
		"Package: wget",
		"Version: 1.21.4-1",
		"",
	}, "\n")

	stanzas, err := control.ParseAll(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}

	if len(stanzas) != 2 {
		t.Fatalf("len(stanzas) = %d, want 2", len(stanzas))
	}

	name, ok := stanzas[0].Get("Package")
	if !ok || name != "curl" {
		t.Fatalf("stanza[0].Package = (%q, %v), want (curl, true)", name, ok)
	}

	version, ok := stanzas[1].Get("Version")
	if !ok || version != "1.21.4-1" {
		t.Fatalf("stanza[1].Version = (%q, %v), want (1.21.4-1, true)", version, ok)
	}
}

func Test_ParseAll_Folds_Continuation_Lines_Into_The_Prior_Field(t *testing.T) {
	src := strings.Join([]string{
		"Package: curl",
		"Description: command line tool",
		" for transferring data",
		" .",
		" with URL syntax",
		"",
	}, "\n")

	stanzas, err := control.ParseAll(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}

	desc, ok := stanzas[0].Get("Description")
	if !ok {
		t.Fatalf("Description field missing")
	}

	want := "command line tool\nfor transferring data\n\nwith URL syntax"
	if desc != want {
		t.Fatalf("Description = %q, want %q", desc, want)
	}
}

func Test_ParseAll_Rejects_A_Stanza_Starting_With_A_Continuation_Line(t *testing.T) {
	src := " leading continuation\nPackage: curl\n"

	if _, err := control.ParseAll(strings.NewReader(src)); err == nil {
		t.Fatalf("ParseAll succeeded, want error for leading continuation")
	}
}

func Test_ParseAll_Rejects_A_Field_Line_Without_A_Colon(t *testing.T) {
	src := "Package curl\n"

	if _, err := control.ParseAll(strings.NewReader(src)); err == nil {
		t.Fatalf("ParseAll succeeded, want error for missing colon")
	}
}

func Test_ParseAll_Handles_A_Source_With_No_Trailing_Blank_Line(t *testing.T) {
	src := "Package: curl\nVersion: 8.4.0-1"

	stanzas, err := control.ParseAll(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}

	if len(stanzas) != 1 {
		t.Fatalf("len(stanzas) = %d, want 1", len(stanzas))
	}

	if v, _ := stanzas[0].Get("Version"); v != "8.4.0-1" {
		t.Fatalf("Version = %q, want 8.4.0-1", v)
	}
}

func Test_Reader_Selects_Decompressor_By_Suffix(t *testing.T) {
	r, err := control.Reader(strings.NewReader("Package: curl\n"), "Packages")
	if err != nil {
		t.Fatalf("Reader (plain): %v", err)
	}

	if r == nil {
		t.Fatalf("Reader (plain) returned nil")
	}
}
