package store

import (
	"fmt"
	"path/filepath"
	"testing"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "data.bkl")
}

// Scenario 1 (spec.md §8): open new, set, close, reopen read-only, get,
// length.
func TestRoundTripAcrossReopen(t *testing.T) {
	path := tempPath(t)

	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	if err := w.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Open(path, Options{Flag: FlagRead})
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	got, err := r.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "1" {
		t.Errorf("got %q, want %q", got, "1")
	}

	n, err := r.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 1 {
		t.Errorf("got length %d, want 1", n)
	}
}

// Scenario 3: update a key, sync, reopen, verify the new value and that
// prune collapses the superseded block.
func TestUpdateSupersedesAndPruneCollapses(t *testing.T) {
	path := tempPath(t)

	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := w.Set([]byte("x"), []byte("1"), nil); err != nil {
		t.Fatalf("set 1: %v", err)
	}
	if err := w.Set([]byte("x"), []byte("2"), nil); err != nil {
		t.Fatalf("set 2: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Open(path, Options{Flag: FlagWrite})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()

	got, err := r.Get([]byte("x"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "2" {
		t.Errorf("got %q, want %q", got, "2")
	}

	n, err := r.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 1 {
		t.Errorf("got length %d, want 1", n)
	}

	removed, err := r.Prune(PruneOptions{})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("got %d removed, want 1 (the superseded block)", removed)
	}

	got, err = r.Get([]byte("x"))
	if err != nil || string(got) != "2" {
		t.Errorf("after prune get = %q, %v; want 2, nil", got, err)
	}
}

// Scenario 5: set, delete, close, reopen, contains false, length 0, prune
// returns 1.
func TestDeleteThenReopenIsAbsent(t *testing.T) {
	path := tempPath(t)

	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.Set([]byte("k"), []byte("v"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Open(path, Options{Flag: FlagWrite})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()

	ok, err := r.Contains([]byte("k"))
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if ok {
		t.Error("contains = true, want false after delete")
	}

	n, err := r.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 0 {
		t.Errorf("got length %d, want 0", n)
	}

	removed, err := r.Prune(PruneOptions{})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("got %d removed, want 1", removed)
	}
}

// Scenario 4: 20000 keys into a store with initial bucket count 10.
// Auto-reindex must relocate the bucket array, and every key stays
// retrievable; prune resets the bucket array back to byte 200.
func TestAutoReindexGrowsAndPrunePacksBack(t *testing.T) {
	path := tempPath(t)

	w, err := Open(path, Options{Flag: FlagNew, BucketCount: 10, BufferThreshold: 1 << 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	const n = 20000
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%06d", i))
		v := []byte(fmt.Sprintf("value-%06d", i))
		if err := w.Set(k, v, nil); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if w.params.BucketCount < 12007 {
		t.Errorf("got bucket count %d, want >= 12007 after auto-reindex", w.params.BucketCount)
	}
	if w.params.BucketArrayOffset == 200 {
		t.Error("bucket array offset is still 200; expected relocation after auto-reindex")
	}

	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%06d", i))
		want := fmt.Sprintf("value-%06d", i)
		got, err := w.Get(k)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if string(got) != want {
			t.Fatalf("key %d: got %q, want %q", i, got, want)
		}
	}

	if _, err := w.Prune(PruneOptions{}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if w.params.BucketArrayOffset != 200 {
		t.Errorf("got bucket array offset %d after prune, want 200", w.params.BucketArrayOffset)
	}

	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%06d", i))
		want := fmt.Sprintf("value-%06d", i)
		got, err := w.Get(k)
		if err != nil {
			t.Fatalf("post-prune get %d: %v", i, err)
		}
		if string(got) != want {
			t.Fatalf("post-prune key %d: got %q, want %q", i, got, want)
		}
	}
}

// Scenario 6: timestamps enabled, an update changes the stored timestamp,
// and prune with a minimum timestamp filter removes entries at or below it.
func TestTimestampUpdateAndFilteredPrune(t *testing.T) {
	path := tempPath(t)

	w, err := Open(path, Options{Flag: FlagNew, TimestampEnabled: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	ts100 := int64(100)
	ts200 := int64(200)
	if err := w.Set([]byte("a"), []byte("1"), &ts100); err != nil {
		t.Fatalf("set ts100: %v", err)
	}
	if err := w.Set([]byte("a"), []byte("2"), &ts200); err != nil {
		t.Fatalf("set ts200: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got, err := w.GetTimestamp([]byte("a"))
	if err != nil {
		t.Fatalf("get timestamp: %v", err)
	}
	if got != 200 {
		t.Errorf("got timestamp %d, want 200", got)
	}

	filter := int64(300)
	if _, err := w.Prune(PruneOptions{MinTimestamp: &filter}); err != nil {
		t.Fatalf("prune: %v", err)
	}

	n, err := w.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 0 {
		t.Errorf("got length %d after filtered prune, want 0", n)
	}
}

// Boundary: a zero-length value is legal and round-trips.
func TestEmptyValueRoundTrips(t *testing.T) {
	path := tempPath(t)
	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if err := w.Set([]byte("k"), []byte{}, nil); err != nil {
		t.Fatalf("set empty value: %v", err)
	}
	got, err := w.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %q, want empty", got)
	}
}

// A read-only handle rejects every mutation with ErrReadOnly.
func TestReadOnlyRejectsMutation(t *testing.T) {
	path := tempPath(t)
	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.Set([]byte("k"), []byte("v"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Open(path, Options{Flag: FlagRead})
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	if err := r.Set([]byte("k2"), []byte("v2"), nil); err != ErrReadOnly {
		t.Errorf("got %v, want ErrReadOnly", err)
	}
	if err := r.Delete([]byte("k")); err != ErrReadOnly {
		t.Errorf("got %v, want ErrReadOnly", err)
	}
	if _, err := r.Prune(PruneOptions{}); err != ErrReadOnly {
		t.Errorf("got %v, want ErrReadOnly", err)
	}
	if err := r.Sync(); err != ErrReadOnly {
		t.Errorf("got %v, want ErrReadOnly", err)
	}
}

// Opening a nonexistent file with "w" (must-exist) fails with ErrNotFound;
// "c" (create-if-absent) succeeds.
func TestOpenFlagsOnMissingFile(t *testing.T) {
	path := tempPath(t)

	if _, err := Open(path, Options{Flag: FlagWrite}); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	s, err := Open(path, Options{Flag: FlagCreate})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Close()
}

// An Update call applies every pair as a single batch; a later read sees
// all of them.
func TestUpdateBatch(t *testing.T) {
	path := tempPath(t)
	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	pairs := []Pair{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	if err := w.Update(pairs); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, err := w.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 3 {
		t.Errorf("got length %d, want 3", n)
	}

	for _, p := range pairs {
		got, err := w.Get(p.Key)
		if err != nil {
			t.Fatalf("get %s: %v", p.Key, err)
		}
		if string(got) != string(p.Value) {
			t.Errorf("key %s: got %q, want %q", p.Key, got, p.Value)
		}
	}
}

// Iterate skips the reserved metadata key and yields every other live
// entry.
func TestIterateExcludesMetadata(t *testing.T) {
	path := tempPath(t)
	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if err := w.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.SetMetadata(map[string]string{"owner": "test"}, nil); err != nil {
		t.Fatalf("set metadata: %v", err)
	}

	entries, err := w.Iterate(IterateOptions{IncludeKeys: true, IncludeValues: true})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (metadata key must be excluded)", len(entries))
	}

	n, err := w.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 2 {
		t.Errorf("got length %d, want 2", n)
	}
}

// Clear drops every entry, including metadata, and the file behaves like a
// freshly created empty store afterward.
func TestClearResetsStore(t *testing.T) {
	path := tempPath(t)
	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if err := w.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.SetMetadata("meta", nil); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if err := w.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	n, err := w.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 0 {
		t.Errorf("got length %d after clear, want 0", n)
	}

	_, found, err := w.GetMetadata(nil)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if found {
		t.Error("metadata still present after clear")
	}

	if err := w.Set([]byte("new"), []byte("v"), nil); err != nil {
		t.Fatalf("set after clear: %v", err)
	}
	got, err := w.Get([]byte("new"))
	if err != nil || string(got) != "v" {
		t.Errorf("get after clear = %q, %v", got, err)
	}
}

// The fixed-value variant rejects a wrongly-sized value with ErrType.
func TestFixedValueVariantRejectsWrongLength(t *testing.T) {
	path := tempPath(t)
	w, err := Open(path, Options{Flag: FlagNew, FixedValueLen: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if err := w.Set([]byte("k"), []byte("1234"), nil); err != nil {
		t.Fatalf("set correct length: %v", err)
	}
	if err := w.Set([]byte("k2"), []byte("12345"), nil); err != ErrType {
		t.Errorf("got %v, want ErrType", err)
	}
}

// Operations on a timestamp-disabled file return ErrNoTimestamps.
func TestTimestampOpsRequireFlag(t *testing.T) {
	path := tempPath(t)
	w, err := Open(path, Options{Flag: FlagNew})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if err := w.Set([]byte("k"), []byte("v"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := w.GetTimestamp([]byte("k")); err != ErrNoTimestamps {
		t.Errorf("got %v, want ErrNoTimestamps", err)
	}
	if err := w.SetTimestamp([]byte("k"), 5); err != ErrNoTimestamps {
		t.Errorf("got %v, want ErrNoTimestamps", err)
	}
}
