package storage

import (
	"errors"
	"testing"
	"time"
)

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	if err := db.StartRun("r1", "s1"); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := db.FinishRun("r1", RunError, "backend exploded"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	// 已结束的 run 不会被再次修改
	if err := db.FinishRun("r1", RunCancelled, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("second finish err = %v, want ErrNotFound", err)
	}

	r, err := db.GetRun("r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if r.Status != RunError || r.Error != "backend exploded" || r.EndedAt == nil {
		t.Errorf("run = %+v", r)
	}
}

func TestPruneRuns(t *testing.T) {
	db := openTestDB(t)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return old }
	_ = db.StartRun("old", "s1")
	_ = db.FinishRun("old", RunCompleted, "")
	_ = db.StartRun("still-running", "s1")

	db.now = func() time.Time { return old.Add(48 * time.Hour) }
	_ = db.StartRun("new", "s1")
	_ = db.FinishRun("new", RunCompleted, "")

	n, err := db.PruneRuns(old.Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, err := db.GetRun("still-running"); err != nil {
		t.Errorf("running run pruned: %v", err)
	}
	if _, err := db.GetRun("new"); err != nil {
		t.Errorf("recent run pruned: %v", err)
	}
}
