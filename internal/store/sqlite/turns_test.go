package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/store"
)

func TestSQLiteTurnStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "turns.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []store.TurnRecord{
		{ID: "t1", UserID: "telegram:1", Text: "Hello there", Fragments: []string{"Hello", "there"}, Reason: "timer", Status: store.TurnDelivered, FlushedAt: base, DurationMS: 1250},
		{ID: "t2", UserID: "telegram:2", Text: "hi", Fragments: []string{"hi"}, Reason: "timer", Status: store.TurnFailed, Error: "responder down", FlushedAt: base.Add(time.Second)},
		{ID: "t3", UserID: "telegram:1", Text: "again", Fragments: []string{"again"}, Reason: "cap", Status: store.TurnDelivered, FlushedAt: base.Add(2 * time.Second)},
	}
	for i := range recs {
		if err := s.SaveTurn(ctx, &recs[i]); err != nil {
			t.Fatalf("SaveTurn(%s): %v", recs[i].ID, err)
		}
	}

	all, err := s.ListTurns(ctx, store.TurnFilter{})
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t3" || all[2].ID != "t1" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if got := all[2].Fragments; len(got) != 2 || got[1] != "there" {
		t.Errorf("fragments = %v", got)
	}
	if all[2].DurationMS != 1250 {
		t.Errorf("DurationMS = %d, want 1250", all[2].DurationMS)
	}
	if !all[2].FlushedAt.Equal(base) {
		t.Errorf("FlushedAt = %s, want %s", all[2].FlushedAt, base)
	}
	if all[1].Status != store.TurnFailed || all[1].Error != "responder down" {
		t.Errorf("failed turn = %+v", all[1])
	}

	mine, err := s.ListTurns(ctx, store.TurnFilter{UserID: "telegram:1", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Errorf("filtered = %d rows, want 2", len(mine))
	}
}

func TestOpen_AddsDurationToOlderFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.db")
	old, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = old.Exec(`CREATE TABLE turns (
		id TEXT PRIMARY KEY, user_id TEXT NOT NULL, destination TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '', text TEXT NOT NULL, fragments TEXT NOT NULL,
		reason TEXT NOT NULL, status TEXT NOT NULL, error TEXT NOT NULL DEFAULT '',
		first_fragment_at INTEGER NOT NULL, flushed_at INTEGER NOT NULL, completed_at INTEGER NOT NULL)`)
	old.Close()
	if err != nil {
		t.Fatalf("create old schema: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	rec := store.TurnRecord{ID: "t1", UserID: "u", Text: "hi", Fragments: []string{"hi"}, Reason: "timer", Status: store.TurnDelivered, DurationMS: 40}
	if err := s.SaveTurn(ctx, &rec); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}
	got, err := s.ListTurns(ctx, store.TurnFilter{})
	if err != nil || len(got) != 1 || got[0].DurationMS != 40 {
		t.Fatalf("ListTurns = %+v, %v", got, err)
	}
}
