package syncstate

import (
	"testing"
	"time"

	"github.com/starford/nbgirder/internal/testutil"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testutil.TempDBPath(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)

	if r, err := db.Get("a.txt"); err != nil || r != nil {
		t.Fatalf("Get unknown = %+v, %v", r, err)
	}

	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := db.Upsert(Record{Path: "a.txt", Checksum: "abc", RemotePath: "in/a.txt", UpdatedAt: when}); err != nil {
		t.Fatal(err)
	}
	r, err := db.Get("a.txt")
	if err != nil || r == nil {
		t.Fatalf("Get = %+v, %v", r, err)
	}
	if r.Checksum != "abc" || r.RemotePath != "in/a.txt" || !r.UpdatedAt.Equal(when) {
		t.Fatalf("record = %+v", r)
	}

	if err := db.Upsert(Record{Path: "a.txt", Checksum: "def", RemotePath: "in/a.txt"}); err != nil {
		t.Fatal(err)
	}
	r, _ = db.Get("a.txt")
	if r.Checksum != "def" || r.UpdatedAt.IsZero() {
		t.Fatalf("after update = %+v", r)
	}
}

func TestAllAndDelete(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Record{Path: "a.txt", Checksum: "1"})
	_ = db.Upsert(Record{Path: "b/c.ipynb", Checksum: "2"})

	all, err := db.All()
	if err != nil || len(all) != 2 || all["b/c.ipynb"].Checksum != "2" {
		t.Fatalf("All = %+v, %v", all, err)
	}

	if err := db.Delete("a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete("never-there"); err != nil {
		t.Fatalf("deleting unknown path: %v", err)
	}
	all, _ = db.All()
	if _, ok := all["a.txt"]; ok || len(all) != 1 {
		t.Fatalf("after delete = %+v", all)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := testutil.TempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Upsert(Record{Path: "keep.txt", Checksum: "x"})
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if r, _ := db.Get("keep.txt"); r == nil || r.Checksum != "x" {
		t.Fatalf("record lost across reopen: %+v", r)
	}
}
