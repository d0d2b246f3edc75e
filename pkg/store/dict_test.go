package store

import "testing"

func Test_StrongDict_Set_Get_Del_Round_Trip(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	mkKey := func(n int32) Value {
		v, err := b.NewRecord(30, FromInt(n))
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}

		stored, err := b.Store(v)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}

		return stored
	}

	d := NewDictHandle(s, DictStrong, Null)

	keys := make([]Value, 50)
	for i := range keys {
		keys[i] = mkKey(int32(i))

		if err := d.Set(keys[i], FromInt(int32(i*10))); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	for i, k := range keys {
		v, ok := d.Get(k)
		if !ok {
			t.Fatalf("Get(key %d): not found", i)
		}

		n, _ := ToInt(v)
		if n != int32(i*10) {
			t.Fatalf("Get(key %d) = %d, want %d", i, n, i*10)
		}
	}

	deleted, err := d.Del(keys[5])
	if err != nil {
		t.Fatalf("Del: %v", err)
	}

	if !deleted {
		t.Fatalf("Del(keys[5]) = false, want true")
	}

	if _, ok := d.Get(keys[5]); ok {
		t.Fatalf("Get(keys[5]) after Del: found, want not found")
	}

	deletedAgain, err := d.Del(keys[5])
	if err != nil {
		t.Fatalf("Del (second time): %v", err)
	}

	if deletedAgain {
		t.Fatalf("Del(keys[5]) a second time = true, want false")
	}
}

func Test_StrongDict_Set_Overwrites_Existing_Key(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	rec, _ := b.NewRecord(31)
	key, err := b.Store(rec)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	d := NewDictHandle(s, DictStrong, Null)

	if err := d.Set(key, FromInt(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := d.Set(key, FromInt(2)); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}

	v, ok := d.Get(key)
	if !ok {
		t.Fatalf("Get: not found")
	}

	if n, _ := ToInt(v); n != 2 {
		t.Fatalf("Get after overwrite = %d, want 2", n)
	}
}

func Test_WeakSetDict_Add_Has_Remove(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	mkObj := func(tag uint8) Value {
		rec, _ := b.NewRecord(tag)

		stored, err := b.Store(rec)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}

		return stored
	}

	key := mkObj(32)
	m1 := mkObj(33)
	m2 := mkObj(34)

	d := NewDictHandle(s, DictWeakSet, Null)

	if d.Has(key, m1) {
		t.Fatalf("Has before Add = true, want false")
	}

	if err := d.Add(key, m1); err != nil {
		t.Fatalf("Add(m1): %v", err)
	}

	if err := d.Add(key, m2); err != nil {
		t.Fatalf("Add(m2): %v", err)
	}

	if !d.Has(key, m1) {
		t.Fatalf("Has(m1) after Add = false, want true")
	}

	if !d.Has(key, m2) {
		t.Fatalf("Has(m2) after Add = false, want true")
	}

	// Re-adding an existing member is a no-op, not a duplicate.
	if err := d.Add(key, m1); err != nil {
		t.Fatalf("Add(m1) again: %v", err)
	}

	removed, err := d.Remove(key, m1)
	if err != nil {
		t.Fatalf("Remove(m1): %v", err)
	}

	if !removed {
		t.Fatalf("Remove(m1) = false, want true")
	}

	if d.Has(key, m1) {
		t.Fatalf("Has(m1) after Remove = true, want false")
	}

	if !d.Has(key, m2) {
		t.Fatalf("Has(m2) after removing m1 = false, want true")
	}

	removed, err = d.Remove(key, m2)
	if err != nil {
		t.Fatalf("Remove(m2): %v", err)
	}

	if !removed {
		t.Fatalf("Remove(m2) = false, want true")
	}

	// The set is now empty, so the whole entry under key is gone.
	if d.Has(key, m2) {
		t.Fatalf("Has(m2) after emptying set = true, want false")
	}

	removedAgain, err := d.Remove(key, m2)
	if err != nil {
		t.Fatalf("Remove(m2) second time: %v", err)
	}

	if removedAgain {
		t.Fatalf("Remove(m2) a second time = true, want false")
	}
}

func Test_WeakSetDict_IterateMembers_Flattens_Each_Key(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	mkObj := func(tag uint8) Value {
		rec, _ := b.NewRecord(tag)

		stored, err := b.Store(rec)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}

		return stored
	}

	k1, k2 := mkObj(40), mkObj(41)
	m1, m2, m3 := mkObj(42), mkObj(43), mkObj(44)

	d := NewDictHandle(s, DictWeakSet, Null)

	for _, add := range []struct{ key, member Value }{
		{k1, m1}, {k1, m2}, {k2, m3},
	} {
		if err := d.Add(add.key, add.member); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got := map[Value]map[Value]bool{}

	it := d.IterateMembers()
	for {
		key, member, ok := it.Next()
		if !ok {
			break
		}

		if got[key] == nil {
			got[key] = map[Value]bool{}
		}

		got[key][member] = true
	}

	if len(got[k1]) != 2 || !got[k1][m1] || !got[k1][m2] {
		t.Fatalf("IterateMembers under k1 = %v, want {m1, m2}", got[k1])
	}

	if len(got[k2]) != 1 || !got[k2][m3] {
		t.Fatalf("IterateMembers under k2 = %v, want {m3}", got[k2])
	}
}

func Test_DictIterator_Visits_Every_Entry_Exactly_Once(t *testing.T) {
	s := openTempStore(t)
	b := s.NewBuilder()

	d := NewDictHandle(s, DictStrong, Null)
	want := map[int32]bool{}

	for i := range int32(40) {
		rec, _ := b.NewRecord(33, FromInt(i))

		key, err := b.Store(rec)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}

		if err := d.Set(key, Null); err != nil {
			t.Fatalf("Set: %v", err)
		}

		want[i] = true
	}

	got := map[int32]bool{}

	it := d.Iterate()
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}

		n, _ := s.RefInt(key, 0)
		got[n] = true
	}

	if len(got) != len(want) {
		t.Fatalf("iterated %d entries, want %d", len(got), len(want))
	}

	for n := range want {
		if !got[n] {
			t.Fatalf("iteration missed key %d", n)
		}
	}
}
