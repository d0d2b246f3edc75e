package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.struct")

	s, err := Open(Options{Path: path, Mode: ModeTruncate, MaxSize: 16 << 20})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func Test_Open_Creates_An_Empty_Store_With_A_Null_Root(t *testing.T) {
	s := openTempStore(t)

	if got := s.GetRoot(); !IsNull(got) {
		t.Fatalf("GetRoot() = %v, want Null", got)
	}
}

func Test_Builder_Store_Materializes_A_Tree_And_SetRoot_Publishes_It(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	leaf := b.NewBlob([]byte("leaf"))

	rec, err := b.NewRecord(10, leaf, FromInt(7))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	stored, err := b.Store(rec)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := s.SetRoot(stored); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}

	got := s.GetRoot()
	if s.Tag(got) != 10 {
		t.Fatalf("Tag(root) = %d, want 10", s.Tag(got))
	}

	if s.Len(got) != 2 {
		t.Fatalf("Len(root) = %d, want 2", s.Len(got))
	}

	if !s.IsBlob(s.Ref(got, 0)) {
		t.Fatalf("field 0 is not a blob")
	}

	if got, want := string(s.BlobBytes(s.Ref(got, 0))), "leaf"; got != want {
		t.Fatalf("blob bytes = %q, want %q", got, want)
	}

	if n, ok := s.RefInt(got, 1); !ok || n != 7 {
		t.Fatalf("field 1 = (%d, %v), want (7, true)", n, ok)
	}
}

func Test_Builder_Store_Preserves_Sharing_Of_A_Value_Referenced_Twice(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	shared := b.NewBlob([]byte("shared"))

	rec, err := b.NewRecord(11, shared, shared)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	stored, err := b.Store(rec)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	a, bRef := s.Ref(stored, 0), s.Ref(stored, 1)
	if a != bRef {
		t.Fatalf("shared scratch value stored twice: %v != %v", a, bRef)
	}
}

func Test_CountedTag_Auto_Assigns_Dense_Ids(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	var ids []int32

	for range 3 {
		rec, err := b.NewRecord(countedTagMin, Null)
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}

		stored, err := b.Store(rec)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}

		n, ok := s.RefInt(stored, 0)
		if !ok {
			t.Fatalf("field 0 is not an int")
		}

		ids = append(ids, n)
	}

	for i, id := range ids {
		if id != int32(i) {
			t.Fatalf("ids = %v, want dense 0..n-1", ids)
		}
	}

	count, err := s.TagCount(countedTagMin)
	if err != nil {
		t.Fatalf("TagCount: %v", err)
	}

	if count != 3 {
		t.Fatalf("TagCount = %d, want 3", count)
	}
}

func Test_Reopen_Preserves_Root_And_Heap_Contents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.struct")

	s, err := Open(Options{Path: path, Mode: ModeTruncate, MaxSize: 16 << 20})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	b := s.NewBuilder()

	rec, err := b.NewRecord(20, FromInt(99))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	stored, err := b.Store(rec)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := s.SetRoot(stored); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Options{Path: path, Mode: ModeReadWrite})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	root := s2.GetRoot()
	if s2.Tag(root) != 20 {
		t.Fatalf("Tag(root) after reopen = %d, want 20", s2.Tag(root))
	}

	if n, ok := s2.RefInt(root, 0); !ok || n != 99 {
		t.Fatalf("field 0 after reopen = (%d, %v), want (99, true)", n, ok)
	}
}

func Test_Open_ReadWrite_Twice_On_The_Same_Path_Returns_ErrLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.struct")

	s1, err := Open(Options{Path: path, Mode: ModeTruncate})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s1.Close()

	_, err = Open(Options{Path: path, Mode: ModeReadWrite})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Open err = %v, want ErrLocked", err)
	}
}
