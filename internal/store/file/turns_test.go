package file

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/store"
)

func TestFileTurnStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.jsonl")
	ctx := context.Background()

	s, err := NewFileTurnStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now().UTC()
	for i, user := range []string{"telegram:1", "telegram:2", "telegram:1"} {
		rec := &store.TurnRecord{
			ID:        string(rune('a' + i)),
			UserID:    user,
			Text:      "hello",
			Fragments: []string{"hello"},
			Status:    store.TurnDelivered,
			FlushedAt: now,
		}
		if err := s.SaveTurn(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = NewFileTurnStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	all, _ := s.ListTurns(ctx, store.TurnFilter{})
	if len(all) != 3 || all[0].ID != "c" {
		t.Fatalf("ListTurns = %+v, want 3 newest-first", all)
	}
	mine, _ := s.ListTurns(ctx, store.TurnFilter{UserID: "telegram:1", Limit: 1})
	if len(mine) != 1 || mine[0].ID != "c" {
		t.Errorf("filtered ListTurns = %+v", mine)
	}
}

func TestFileTurnStore_MemoryOnly(t *testing.T) {
	s, err := NewFileTurnStore("")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTurn(context.Background(), &store.TurnRecord{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ListTurns(context.Background(), store.TurnFilter{})
	if len(got) != 1 {
		t.Errorf("got %d turns", len(got))
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
