package db

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("ApplyMigrations returned error: %v", err)
	}
	return d
}

func TestAccountSnapshotReplacesPreviousRows(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	first := []AccountRow{
		{ID: "1", Doc: []byte(`{"id":1}`)},
		{ID: "2", Doc: []byte(`{"id":2}`)},
	}
	if err := d.SaveAccounts(ctx, first); err != nil {
		t.Fatalf("SaveAccounts returned error: %v", err)
	}

	// The next snapshot fully replaces the previous one: row 2 is gone.
	second := []AccountRow{{ID: "1", Doc: []byte(`{"id":1,"onboarded":true}`)}}
	if err := d.SaveAccounts(ctx, second); err != nil {
		t.Fatalf("SaveAccounts returned error: %v", err)
	}

	got, err := d.LoadAccounts(ctx)
	if err != nil {
		t.Fatalf("LoadAccounts returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows=%d, expected 1 after replacement", len(got))
	}
	if got[0].ID != "1" || string(got[0].Doc) != `{"id":1,"onboarded":true}` {
		t.Fatalf("row=%+v, expected the replaced doc", got[0])
	}
}

func TestAlertSnapshotRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	rows := []AlertRow{
		{ID: "a1", Doc: []byte(`{"mint":"mintA"}`)},
		{ID: "a2", Doc: []byte(`{"mint":"mintB"}`)},
	}
	if err := d.SaveAlerts(ctx, rows); err != nil {
		t.Fatalf("SaveAlerts returned error: %v", err)
	}

	got, err := d.LoadAlerts(ctx)
	if err != nil {
		t.Fatalf("LoadAlerts returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows=%d, expected 2", len(got))
	}

	// An empty snapshot clears the table.
	if err := d.SaveAlerts(ctx, nil); err != nil {
		t.Fatalf("SaveAlerts(nil) returned error: %v", err)
	}
	got, err = d.LoadAlerts(ctx)
	if err != nil {
		t.Fatalf("LoadAlerts returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rows=%d after empty snapshot, expected 0", len(got))
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
