package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateStreamAndOrder(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Minute)
	if err := db.CreateStream("s1", "chat1", base); err != nil {
		t.Fatalf("CreateStream failed: %v", err)
	}
	if err := db.CreateStream("s2", "chat1", base.Add(time.Second)); err != nil {
		t.Fatalf("CreateStream failed: %v", err)
	}
	if err := db.CreateStream("other", "chat2", base); err != nil {
		t.Fatalf("CreateStream failed: %v", err)
	}

	records, err := db.StreamsByChat("chat1")
	if err != nil {
		t.Fatalf("StreamsByChat failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "s1" || records[1].ID != "s2" {
		t.Errorf("records not in creation order: %v", records)
	}
}

func TestStreamsByChat_Empty(t *testing.T) {
	db := openTestDB(t)

	records, err := db.StreamsByChat("missing")
	if err != nil {
		t.Fatalf("StreamsByChat failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestDeleteStreamsBefore(t *testing.T) {
	db := openTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	_ = db.CreateStream("old", "chat1", old)
	_ = db.CreateStream("new", "chat1", time.Now())

	n, err := db.DeleteStreamsBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteStreamsBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}

	records, _ := db.StreamsByChat("chat1")
	if len(records) != 1 || records[0].ID != "new" {
		t.Errorf("unexpected surviving records: %v", records)
	}
}
