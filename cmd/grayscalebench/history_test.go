package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/grayscalebench/internal/store"
)

func TestSelectRecordsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	recs := []store.Record{
		{ID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{ID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{ID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{ID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRecordsForDeletion(recs, 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 records to delete, got %d", len(toDelete))
	}
	ids := map[string]bool{}
	for _, rec := range toDelete {
		ids[rec.ID] = true
	}
	if !ids["run1"] || !ids["run4"] {
		t.Errorf("Expected run1 and run4, got %v", ids)
	}
}

func TestSelectRecordsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	recs := []store.Record{
		{ID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{ID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{ID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{ID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRecordsForDeletion(recs, 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 records to delete, got %d", len(toDelete))
	}
	if toDelete[0].ID != "run4" || toDelete[1].ID != "run1" {
		t.Errorf("Expected oldest records run4 and run1, got %s and %s", toDelete[0].ID, toDelete[1].ID)
	}
}

func TestSelectRecordsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	recs := []store.Record{
		{ID: "old", Timestamp: now.AddDate(0, 0, -40)},
		{ID: "mid", Timestamp: now.AddDate(0, 0, -3)},
		{ID: "new", Timestamp: now},
	}

	toDelete := selectRecordsForDeletion(recs, 2, 30, now)

	if len(toDelete) != 1 || toDelete[0].ID != "old" {
		t.Errorf("Expected only old to be deleted once, got %v", toDelete)
	}
}

func TestSelectRecordsForDeletion_NothingToDo(t *testing.T) {
	now := time.Now()
	recs := []store.Record{{ID: "a", Timestamp: now}}

	if got := selectRecordsForDeletion(recs, 5, 0, now); len(got) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(got))
	}
	if got := selectRecordsForDeletion(nil, 1, 1, now); len(got) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(got))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{4 << 30, "4.0 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestGetDirSize(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0644)

	size, err := getDirSize(dir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size != 150 {
		t.Errorf("Expected 150 bytes, got %d", size)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("Got %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("Got %q", got)
	}
}
