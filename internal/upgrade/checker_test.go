package upgrade

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func setVersion(t *testing.T, db *sql.DB, version int, dirty bool) {
	t.Helper()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version BIGINT NOT NULL, dirty BOOLEAN NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`DELETE FROM schema_migrations`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
		t.Fatal(err)
	}
}

func TestCheckSchema_FreshDatabase(t *testing.T) {
	s, err := CheckSchema(openDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if !s.NeedsMigration || s.Compatible {
		t.Errorf("fresh db status = %+v", s)
	}
	if !errors.Is(s.Err(), ErrSchemaIncompatible) {
		t.Errorf("Err() = %v", s.Err())
	}
}

func TestCheckSchema_Versions(t *testing.T) {
	tests := []struct {
		name       string
		version    int
		dirty      bool
		compatible bool
		needs      bool
		msg        string
	}{
		{"current", int(RequiredSchemaVersion), false, true, false, ""},
		{"behind", 0, false, false, true, "migrate up"},
		{"ahead", int(RequiredSchemaVersion) + 1, false, false, false, "newer than this binary"},
		{"dirty", int(RequiredSchemaVersion), true, false, false, "dirty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			setVersion(t, db, tt.version, tt.dirty)
			s, err := CheckSchema(db)
			if err != nil {
				t.Fatal(err)
			}
			if s.Compatible != tt.compatible || s.NeedsMigration != tt.needs || s.Dirty != tt.dirty {
				t.Fatalf("status = %+v", s)
			}
			if tt.compatible {
				if s.Err() != nil {
					t.Errorf("Err() = %v", s.Err())
				}
				return
			}
			if !strings.Contains(FormatError(s), tt.msg) {
				t.Errorf("FormatError = %q, want it to mention %q", FormatError(s), tt.msg)
			}
		})
	}
}
