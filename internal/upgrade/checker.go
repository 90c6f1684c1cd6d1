// Package upgrade checks that the Postgres turn-log schema matches what this
// binary expects before the gateway starts writing to it.
package upgrade

import (
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the highest migration under migrations/ that this
// binary depends on.
const RequiredSchemaVersion uint = 2

// SchemaStatus represents the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

var ErrSchemaIncompatible = errors.New("database schema is incompatible")

// CheckSchema reads golang-migrate's schema_migrations table. A missing
// table or row means the database has never been migrated.
func CheckSchema(db *sql.DB) (*SchemaStatus, error) {
	s := &SchemaStatus{RequiredVersion: RequiredSchemaVersion}

	err := db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&s.CurrentVersion, &s.Dirty)
	if err != nil {
		s.NeedsMigration = true
		return s, nil
	}
	if s.Dirty {
		return s, nil
	}

	switch {
	case s.CurrentVersion == RequiredSchemaVersion:
		s.Compatible = true
	case s.CurrentVersion < RequiredSchemaVersion:
		s.NeedsMigration = true
	}
	return s, nil
}

// Err returns nil for a compatible schema, otherwise ErrSchemaIncompatible
// wrapped with operator instructions.
func (s *SchemaStatus) Err() error {
	if s.Compatible {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSchemaIncompatible, FormatError(s))
}

// FormatError returns a user-friendly error message for the given status.
func FormatError(s *SchemaStatus) string {
	switch {
	case s.Dirty:
		return fmt.Sprintf(
			"schema is dirty at v%d (a migration failed partway); fix with `turnbuf migrate force %d` then `turnbuf migrate up`",
			s.CurrentVersion, s.CurrentVersion-1,
		)
	case s.CurrentVersion > s.RequiredVersion:
		return fmt.Sprintf(
			"schema v%d is newer than this binary (requires v%d); upgrade turnbuf",
			s.CurrentVersion, s.RequiredVersion,
		)
	default:
		return fmt.Sprintf(
			"schema is at v%d, v%d required; run `turnbuf migrate up`",
			s.CurrentVersion, s.RequiredVersion,
		)
	}
}
