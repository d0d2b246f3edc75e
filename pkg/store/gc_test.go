package store

import "testing"

func Test_GC_Preserves_Root_Reachable_Data(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	leaf := b.NewBlob([]byte("payload"))

	rec, err := b.NewRecord(50, leaf, FromInt(123))
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

	if err := s.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}

	root := s.GetRoot()
	if s.Tag(root) != 50 {
		t.Fatalf("Tag(root) after GC = %d, want 50", s.Tag(root))
	}

	if got, want := string(s.BlobBytes(s.Ref(root, 0))), "payload"; got != want {
		t.Fatalf("blob after GC = %q, want %q", got, want)
	}

	if n, ok := s.RefInt(root, 1); !ok || n != 123 {
		t.Fatalf("int field after GC = (%d, %v), want (123, true)", n, ok)
	}
}

func Test_GC_Reclaims_Space_From_Unreachable_Objects(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	kept, err := b.Store(mustRecord(t, b, 51, FromInt(1)))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := s.SetRoot(kept); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}

	before := s.length

	// Allocate a large amount of garbage not reachable from the root.
	for range 200 {
		if _, err := s.allocBlob(make([]byte, 256)); err != nil {
			t.Fatalf("allocBlob: %v", err)
		}
	}

	grown := s.length
	if grown <= before {
		t.Fatalf("length did not grow after allocating garbage: %d <= %d", grown, before)
	}

	if err := s.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}

	if s.length >= grown {
		t.Fatalf("length after GC = %d, want less than pre-GC length %d", s.length, grown)
	}
}

func Test_GC_Drops_WeakKey_Entries_Whose_Key_Is_Unreachable(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	aliveKey, err := b.Store(mustRecord(t, b, 52, FromInt(1)))
	if err != nil {
		t.Fatalf("Store aliveKey: %v", err)
	}

	garbageKey, err := b.Store(mustRecord(t, b, 52, FromInt(2)))
	if err != nil {
		t.Fatalf("Store garbageKey: %v", err)
	}

	d := NewDictHandle(s, DictWeakKey, Null)

	if err := d.Set(aliveKey, FromInt(111)); err != nil {
		t.Fatalf("Set aliveKey: %v", err)
	}

	if err := d.Set(garbageKey, FromInt(222)); err != nil {
		t.Fatalf("Set garbageKey: %v", err)
	}

	topRec, err := b.NewRecord(53, aliveKey, d.Root())
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	top, err := b.Store(topRec)
	if err != nil {
		t.Fatalf("Store top: %v", err)
	}

	if err := s.SetRoot(top); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}

	if err := s.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}

	root := s.GetRoot()
	newAliveKey := s.Ref(root, 0)
	newDictRoot := s.Ref(root, 1)

	d2 := NewDictHandle(s, DictWeakKey, newDictRoot)

	v, ok := d2.Get(newAliveKey)
	if !ok {
		t.Fatalf("alive key missing from weak-key dict after GC")
	}

	if n, _ := ToInt(v); n != 111 {
		t.Fatalf("alive key's value after GC = %d, want 111", n)
	}

	count := 0
	d2.Each(func(Value, Value) bool { count++; return true })

	if count != 1 {
		t.Fatalf("weak-key dict has %d entries after GC, want 1 (garbage key should be dropped)", count)
	}
}

func Test_GC_Drops_WeakSet_Members_That_Are_Unreachable(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	key, err := b.Store(mustRecord(t, b, 53, Null))
	if err != nil {
		t.Fatalf("Store key: %v", err)
	}

	aliveMember, err := b.Store(mustRecord(t, b, 54, FromInt(1)))
	if err != nil {
		t.Fatalf("Store aliveMember: %v", err)
	}

	garbageMember, err := b.Store(mustRecord(t, b, 54, FromInt(2)))
	if err != nil {
		t.Fatalf("Store garbageMember: %v", err)
	}

	ws := NewDictHandle(s, DictWeakSet, Null)

	if err := ws.Add(key, aliveMember); err != nil {
		t.Fatalf("Add(key, aliveMember): %v", err)
	}

	if err := ws.Add(key, garbageMember); err != nil {
		t.Fatalf("Add(key, garbageMember): %v", err)
	}

	// Only aliveMember is kept reachable from the top record; garbageMember
	// is otherwise unreachable and the key itself is reachable only through
	// the weak-set's own (delayed) entry.
	topRec, err := b.NewRecord(55, aliveMember, ws.Root())
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	top, err := b.Store(topRec)
	if err != nil {
		t.Fatalf("Store top: %v", err)
	}

	if err := s.SetRoot(top); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}

	if err := s.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}

	root := s.GetRoot()
	newAliveMember := s.Ref(root, 0)
	newSetRoot := s.Ref(root, 1)

	ws2 := NewDictHandle(s, DictWeakSet, newSetRoot)

	count := 0
	var sawKey, sawMember Value

	ws2.EachMember(func(k, m Value) bool {
		count++
		sawKey, sawMember = k, m

		return true
	})

	if count != 1 {
		t.Fatalf("weak-set has %d (key, member) pairs after GC, want 1 (garbage member should be dropped)", count)
	}

	if sawMember != newAliveMember {
		t.Fatalf("surviving member after GC = %v, want %v", sawMember, newAliveMember)
	}

	if !ws2.Has(sawKey, newAliveMember) {
		t.Fatalf("key pulled alive by aliveMember should still map to it after GC")
	}
}

func Test_GC_Renumbers_Counted_Tags_Densely(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	var kept []Value

	for range 5 {
		v, err := b.Store(mustRecord(t, b, countedTagMin+1, Null))
		if err != nil {
			t.Fatalf("Store: %v", err)
		}

		kept = append(kept, v)
	}

	fields := append([]Value{}, kept...)

	topRec, err := b.NewRecord(56, fields...)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	top, err := b.Store(topRec)
	if err != nil {
		t.Fatalf("Store top: %v", err)
	}

	if err := s.SetRoot(top); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}

	if err := s.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}

	count, err := s.TagCount(countedTagMin + 1)
	if err != nil {
		t.Fatalf("TagCount: %v", err)
	}

	if count != 5 {
		t.Fatalf("TagCount after GC = %d, want 5", count)
	}

	root := s.GetRoot()

	seen := map[int32]bool{}

	for i := range s.Len(root) {
		n, ok := s.RefInt(s.Ref(root, i), 0)
		if !ok {
			t.Fatalf("field %d of kept object is not an int id", i)
		}

		seen[n] = true
	}

	for i := int32(0); i < 5; i++ {
		if !seen[i] {
			t.Fatalf("dense id %d missing after GC renumbering: seen=%v", i, seen)
		}
	}
}

func mustRecord(t *testing.T, b *Builder, tag uint8, fields ...Value) Value {
	t.Helper()

	v, err := b.NewRecord(tag, fields...)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	return v
}
