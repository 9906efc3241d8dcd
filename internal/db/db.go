package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/csm-companion/internal/config"
	_ "modernc.org/sqlite"
)

// FileName is the emulator database file inside the base directory.
const FileName = "backend.db"

// pragmas apply to every pooled connection.
const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// migration upgrades the schema from version-1 to version.
type migration struct {
	version int
	name    string
	schema  string
}

// migrations run in order; append only.
var migrations = []migration{
	{1, "pulse records", `
		CREATE TABLE IF NOT EXISTS pulses (
		  case_id             TEXT PRIMARY KEY,
		  symptom             TEXT,
		  environment         TEXT,
		  steps_to_reproduce  TEXT,
		  business_impact     TEXT,
		  customer_contacts   TEXT,
		  data_collected      TEXT,
		  research            TEXT,
		  research_internal   TEXT,
		  cause               TEXT,
		  solution            TEXT,
		  see_also            TEXT,
		  internal_memo_html  TEXT,
		  sys_updated_on      TEXT NOT NULL,
		  sys_updated_by      TEXT NOT NULL
		);`},
	{2, "guided engineering", `
		CREATE TABLE IF NOT EXISTS automations (
		  id             TEXT PRIMARY KEY,
		  name           TEXT NOT NULL,
		  description    TEXT,
		  component      TEXT NOT NULL,
		  products_json  TEXT,
		  options_json   TEXT,
		  created_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_automations_component ON automations(component);

		CREATE TABLE IF NOT EXISTS automation_runs (
		  workflow_id    TEXT PRIMARY KEY,
		  automation_id  TEXT NOT NULL REFERENCES automations(id),
		  incident_no    TEXT NOT NULL,
		  component      TEXT,
		  options_json   TEXT,
		  status         TEXT NOT NULL,
		  output         TEXT,
		  started_ts     TEXT NOT NULL,
		  completed_ts   TEXT,
		  thumb_up       INTEGER NOT NULL DEFAULT 0,
		  thumb_down     INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_runs_incident ON automation_runs(incident_no, started_ts DESC);

		CREATE TABLE IF NOT EXISTS automation_feedback (
		  id             TEXT PRIMARY KEY,
		  automation_id  TEXT NOT NULL,
		  workflow_id    TEXT NOT NULL REFERENCES automation_runs(workflow_id),
		  thumb_up       INTEGER NOT NULL,
		  thumb_down     INTEGER NOT NULL,
		  created_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_feedback_workflow ON automation_feedback(workflow_id, created_at DESC);`},
}

// CurrentSchemaVersion is the version the last migration leaves behind.
var CurrentSchemaVersion = migrations[len(migrations)-1].version

// Init opens the emulator database at baseDir/backend.db and brings its
// schema up to date. Tests pass t.TempDir() instead of ~/.companion.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, FileName)
	db, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// best-effort; the file exists only after the first statement
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool limits that are set in cfg.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies every migration above the stored user_version, each in its
// own transaction together with the version bump.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(m.schema); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if err := SetUserVersion(tx, m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): commit: %w", m.version, m.name, err)
		}
	}
	return nil
}

// verifyWALMode checks that the connection string switched on WAL.
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the schema version stored in the user_version pragma.
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// SetUserVersion stores the schema version in the user_version pragma.
func SetUserVersion(db execer, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
