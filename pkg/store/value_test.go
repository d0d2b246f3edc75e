package store

import "testing"

func Test_FromInt_ToInt_RoundTrips_Through_The_Representable_Range(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 42, -42, 1 << 20, -(1 << 20)} {
		v := FromInt(n)

		got, ok := ToInt(v)
		if !ok {
			t.Fatalf("ToInt(%v): ok=false, want true", v)
		}

		if got != n {
			t.Fatalf("FromInt(%d) -> ToInt = %d, want %d", n, got, n)
		}
	}
}

func Test_IsNull_Is_True_Only_For_The_Zero_Value(t *testing.T) {
	if !IsNull(Null) {
		t.Fatalf("IsNull(Null) = false, want true")
	}

	if IsNull(FromInt(0)) {
		t.Fatalf("IsNull(FromInt(0)) = true, want false")
	}
}

func Test_IsInt_Distinguishes_Integers_From_References(t *testing.T) {
	if !IsInt(FromInt(7)) {
		t.Fatalf("IsInt(FromInt(7)) = false, want true")
	}

	if IsInt(Null) {
		t.Fatalf("IsInt(Null) = true, want false")
	}

	if IsInt(storeValue(256)) {
		t.Fatalf("IsInt(storeValue(256)) = true, want false")
	}
}

func Test_EncodeDecodeFieldWord_Is_Self_Relative(t *testing.T) {
	objBase := uint32(1024)
	target := storeValue(2048)

	word := encodeFieldWord(target, objBase)

	got := decodeFieldWord(word, objBase)
	if got != target {
		t.Fatalf("decodeFieldWord(encodeFieldWord(target, base), base) = %v, want %v", got, target)
	}

	// Moving both the field's containing object and its target by the same
	// delta must not change the decoded relative offset.
	shiftedWord := encodeFieldWord(storeValue(uint32(storeOffset(target))+100), objBase+100)
	if shiftedWord != word {
		t.Fatalf("shifting target and base by the same delta changed the word: %#x != %#x", shiftedWord, word)
	}
}

func Test_ScratchAndStoreReferences_Are_Distinguishable(t *testing.T) {
	sv := scratchValue(5)
	if !isScratch(sv) {
		t.Fatalf("isScratch(scratchValue(5)) = false, want true")
	}

	if isStoreRef(sv) {
		t.Fatalf("isStoreRef(scratchValue(5)) = true, want false")
	}

	rv := storeValue(5)
	if isScratch(rv) {
		t.Fatalf("isScratch(storeValue(5)) = true, want false")
	}

	if !isStoreRef(rv) {
		t.Fatalf("isStoreRef(storeValue(5)) = false, want true")
	}
}
