package storage

import (
	"errors"
	"testing"
	"time"
)

func TestKV_SetGetOverwrite(t *testing.T) {
	db := openTestDB(t)

	if err := db.KVSet("transcript:t1", "[]", 0); err != nil {
		t.Fatalf("KVSet failed: %v", err)
	}
	if err := db.KVSet("transcript:t1", `[{"role":"user"}]`, 0); err != nil {
		t.Fatalf("KVSet overwrite failed: %v", err)
	}
	value, err := db.KVGet("transcript:t1")
	if err != nil {
		t.Fatalf("KVGet failed: %v", err)
	}
	if value != `[{"role":"user"}]` {
		t.Errorf("value = %q", value)
	}
}

func TestKVGet_NotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.KVGet("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKV_Expiry(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	if err := db.KVSet("short", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := db.KVSet("forever", "v", 0); err != nil {
		t.Fatal(err)
	}

	db.now = func() time.Time { return base.Add(2 * time.Minute) }
	n, err := db.KVCleanExpired()
	if err != nil {
		t.Fatalf("KVCleanExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned = %d, want 1", n)
	}
	if _, err := db.KVGet("short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired key still readable: %v", err)
	}
	if _, err := db.KVGet("forever"); err != nil {
		t.Errorf("non-expiring key lost: %v", err)
	}
}

func TestKVDelete(t *testing.T) {
	db := openTestDB(t)

	_ = db.KVSet("k", "v", 0)
	if err := db.KVDelete("k"); err != nil {
		t.Fatalf("KVDelete failed: %v", err)
	}
	if err := db.KVDelete("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
