package fetch_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucasmendez/aptgo/internal/fetch"
	"github.com/lucasmendez/aptgo/pkg/fs"
)

func Test_Fetch_Downloads_And_Verifies_Content_Against_The_Expected_Digest(t *testing.T) {
	body := []byte("Package: curl\nVersion: 8.4.0-1\n")
	sum := sha256.Sum256(body)
	want := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "Packages")

	c := fetch.NewClient(fs.NewReal())

	result, err := c.Fetch(context.Background(), srv.URL, dest, want)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if result != fetch.Changed {
		t.Fatalf("result = %v, want Changed", result)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != string(body) {
		t.Fatalf("dest content = %q, want %q", got, body)
	}
}

func Test_Fetch_Reports_Unchanged_When_Destination_Already_Matches(t *testing.T) {
	body := []byte("Package: wget\nVersion: 1.21.4-1\n")
	sum := sha256.Sum256(body)
	want := hex.EncodeToString(sum[:])

	called := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "Packages")
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		t.Fatalf("seed dest: %v", err)
	}

	c := fetch.NewClient(fs.NewReal())

	result, err := c.Fetch(context.Background(), srv.URL, dest, want)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if result != fetch.Unchanged {
		t.Fatalf("result = %v, want Unchanged", result)
	}

	if called {
		t.Fatalf("server was contacted even though dest already matched")
	}
}

func Test_Fetch_Reports_NotFound_On_Http_404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "Packages")

	c := fetch.NewClient(fs.NewReal())

	result, err := c.Fetch(context.Background(), srv.URL, dest, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if result != fetch.NotFound {
		t.Fatalf("result = %v, want NotFound", result)
	}
}

func Test_Fetch_Surfaces_Write_Failures_Without_Leaving_Dest_Behind(t *testing.T) {
	body := []byte("Package: curl\nVersion: 8.4.0-1\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "Packages")

	chaos := fs.NewChaos(fs.NewReal(), 1, &fs.ChaosConfig{WriteFailRate: 1})
	c := fetch.NewClient(chaos)

	_, err := c.Fetch(context.Background(), srv.URL, dest, "")
	if err == nil {
		t.Fatalf("Fetch succeeded, want write failure surfaced")
	}

	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("dest exists after a failed write: %v", statErr)
	}
}

func Test_Fetch_Rejects_Content_That_Does_Not_Match_The_Expected_Digest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered content"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "Packages")

	c := fetch.NewClient(fs.NewReal())

	_, err := c.Fetch(context.Background(), srv.URL, dest, "0000000000000000000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Fatalf("Fetch succeeded, want digest mismatch error")
	}
}
