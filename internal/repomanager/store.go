package repomanager

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RepoRecord is the persisted shape of a ManagedRepo, independent of the
// in-memory gitcore.Repository handle (which isn't something a row can
// hold - it's reloaded from DiskPath on restart).
type RepoRecord struct {
	ID         string
	URL        string
	NormURL    string
	DiskPath   string
	State      RepoState
	Error      string
	CreatedAt  time.Time
	LastAccess time.Time
	LastFetch  time.Time
}

// Store persists the repo registry to SQLite so it survives process
// restarts, grounded on the same goose-migration shape as the rest of the
// module's tooling.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) a SQLite database at path and
// brings its schema up to the latest migration.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes r's current state, inserting a new row or overwriting the
// existing one for the same ID.
func (s *Store) Upsert(r RepoRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO repos (id, url, norm_url, disk_path, state, error, created_at, last_access, last_fetch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			state = excluded.state,
			error = excluded.error,
			last_access = excluded.last_access,
			last_fetch = excluded.last_fetch
	`,
		r.ID, r.URL, r.NormURL, r.DiskPath, r.State.String(), r.Error,
		r.CreatedAt.Unix(), r.LastAccess.Unix(), r.LastFetch.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert repo %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes the row for id, if any.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM repos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete repo %s: %w", id, err)
	}
	return nil
}

// List returns every persisted repo record.
func (s *Store) List() ([]RepoRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, url, norm_url, disk_path, state, error, created_at, last_access, last_fetch
		FROM repos
	`)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var out []RepoRecord
	for rows.Next() {
		var r RepoRecord
		var state string
		var createdAt, lastAccess, lastFetch int64
		if err := rows.Scan(&r.ID, &r.URL, &r.NormURL, &r.DiskPath, &state, &r.Error, &createdAt, &lastAccess, &lastFetch); err != nil {
			return nil, fmt.Errorf("scan repo row: %w", err)
		}
		r.State = parseRepoState(state)
		r.CreatedAt = time.Unix(createdAt, 0)
		r.LastAccess = time.Unix(lastAccess, 0)
		if lastFetch > 0 {
			r.LastFetch = time.Unix(lastFetch, 0)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseRepoState(s string) RepoState {
	switch s {
	case "cloning":
		return StateCloning
	case "ready":
		return StateReady
	case "error":
		return StateError
	default:
		return StatePending
	}
}
