package store

// Backend names accepted in database.mode.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StoreConfig selects and configures the turn log backend.
type StoreConfig struct {
	Mode        string
	FilePath    string // JSONL file for the file backend; empty keeps the log in memory
	SQLitePath  string
	PostgresDSN string
}

// Stores is the top-level container for storage backends.
type Stores struct {
	Turns TurnStore
}

// Close releases every backend.
func (s *Stores) Close() error {
	if s == nil || s.Turns == nil {
		return nil
	}
	return s.Turns.Close()
}
