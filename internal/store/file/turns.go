package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/turnbuf/internal/store"
)

// maxRetained caps the in-memory turn log.
const maxRetained = 5000

// FileTurnStore keeps recent turns in memory and, when a path is given,
// appends every record to a JSONL file that is replayed on open.
type FileTurnStore struct {
	mu    sync.RWMutex
	turns []store.TurnRecord
	f     *os.File
}

// NewFileTurnStore opens (or creates) path. An empty path keeps the log in memory only.
func NewFileTurnStore(path string) (*FileTurnStore, error) {
	s := &FileTurnStore{}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create turn log dir: %w", err)
	}
	if err := s.replay(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open turn log: %w", err)
	}
	s.f = f
	return s, nil
}

func (s *FileTurnStore) replay(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open turn log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	skipped := 0
	for sc.Scan() {
		var rec store.TurnRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			skipped++
			continue
		}
		s.appendLocked(rec)
	}
	if skipped > 0 {
		slog.Warn("turn log: skipped malformed lines", "path", path, "count", skipped)
	}
	return sc.Err()
}

func (s *FileTurnStore) appendLocked(rec store.TurnRecord) {
	s.turns = append(s.turns, rec)
	if over := len(s.turns) - maxRetained; over > 0 {
		s.turns = append([]store.TurnRecord(nil), s.turns[over:]...)
	}
}

func (s *FileTurnStore) SaveTurn(_ context.Context, rec *store.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		if _, err := s.f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
	}
	s.appendLocked(*rec)
	return nil
}

func (s *FileTurnStore) ListTurns(_ context.Context, f store.TurnFilter) ([]store.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.EffectiveLimit()
	var out []store.TurnRecord
	for i := len(s.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.UserID != "" && s.turns[i].UserID != f.UserID {
			continue
		}
		out = append(out, s.turns[i])
	}
	return out, nil
}

func (s *FileTurnStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
