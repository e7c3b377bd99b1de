package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type testRec struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUpsertGetDelete(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Upsert("things", "a", testRec{Name: "one", Count: 1}); err != nil {
		t.Fatal(err)
	}

	var got testRec
	if err := store.Get("things", "a", &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "one" || got.Count != 1 {
		t.Errorf("got %+v, want {one 1}", got)
	}

	if err := store.Upsert("things", "a", testRec{Name: "one", Count: 2}); err != nil {
		t.Fatal(err)
	}
	if err := store.Get("things", "a", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 2 {
		t.Errorf("upsert did not replace record, count=%d", got.Count)
	}

	if err := store.Delete("things", "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Get("things", "a", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err=%v, want ErrNotFound", err)
	}
	if err := store.Delete("things", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete absent: err=%v, want ErrNotFound", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := store.Upsert("files", key, testRec{Name: key, Count: i}); err != nil {
			t.Fatal(err)
		}
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	n, err := reopened.Len("files")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("reopened collection has %d records, want 5", n)
	}
	var got testRec
	if err := reopened.Get("files", "k3", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 3 {
		t.Errorf("k3 count=%d, want 3", got.Count)
	}
}

func TestUpdateAbortLeavesSnapshotIntact(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert("c", "k", testRec{Count: 1}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = store.Update("c", func(records map[string]json.RawMessage) error {
		delete(records, "k")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("update err=%v, want boom", err)
	}

	var got testRec
	if err := store.Get("c", "k", &got); err != nil {
		t.Fatalf("record lost after aborted update: %v", err)
	}
}

func TestConcurrentWritersNoLostUpdates(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// Distinct keys written in parallel must all survive.
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			if err := store.Upsert("par", key, testRec{Count: i}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	n, err := store.Len("par")
	if err != nil {
		t.Fatal(err)
	}
	if n != 32 {
		t.Errorf("collection has %d records, want 32", n)
	}

	// Read-modify-write on a single shared counter must not lose increments.
	if err := store.Upsert("ctr", "n", testRec{Count: 0}); err != nil {
		t.Fatal(err)
	}
	wg = sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update("ctr", func(records map[string]json.RawMessage) error {
				var rec testRec
				if err := json.Unmarshal(records["n"], &rec); err != nil {
					return err
				}
				rec.Count++
				data, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				records["n"] = data
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	var got testRec
	if err := store.Get("ctr", "n", &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 20 {
		t.Errorf("counter=%d, want 20 (lost update)", got.Count)
	}
}
