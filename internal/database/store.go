package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/crawlscope/internal/model"
)

// DBFileName is the name of the SQLite file inside the data directory.
const DBFileName = "crawlscope.db"

// Store provides SQLite-based storage for search records and crawl progress.
//
// Design decision: We use one connection for the whole process. SQLite
// serializes writers anyway, and a single connection turns every guarded
// UPDATE into a strictly ordered operation, so a stop request and a page
// append can never interleave inside one statement.
type Store struct {
	db     *sqlx.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so observers can read while a
	// crawl writes.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT,
		urls TEXT NOT NULL DEFAULT '[]',
		saved INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_search_domain ON search_records(domain);
	CREATE INDEX IF NOT EXISTS idx_search_owner ON search_records(owner);
	CREATE INDEX IF NOT EXISTS idx_search_started ON search_records(started_at);

	CREATE TABLE IF NOT EXISTS crawl_progress (
		progress_key TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		count INTEGER NOT NULL DEFAULT 0,
		last_url TEXT NOT NULL DEFAULT '',
		urls TEXT NOT NULL DEFAULT '[]',
		done INTEGER NOT NULL DEFAULT 0,
		stop_requested INTEGER NOT NULL DEFAULT 0,
		search_id INTEGER REFERENCES search_records(id),
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_progress_updated ON crawl_progress(updated_at);
	CREATE INDEX IF NOT EXISTS idx_progress_search ON crawl_progress(search_id);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// searchRow is the storage shape of model.SearchRecord.
type searchRow struct {
	ID         int64          `db:"id"`
	Domain     string         `db:"domain"`
	Owner      string         `db:"owner"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
	URLs       string         `db:"urls"`
	Saved      bool           `db:"saved"`
	Status     string         `db:"status"`
	Message    string         `db:"message"`
}

func (r *searchRow) toModel() (*model.SearchRecord, error) {
	rec := &model.SearchRecord{
		ID:        r.ID,
		Domain:    r.Domain,
		Owner:     r.Owner,
		StartedAt: parseTimestamp(r.StartedAt),
		Saved:     r.Saved,
		Status:    model.ParseCrawlStatus(r.Status),
		Message:   r.Message,
	}
	if r.FinishedAt.Valid && r.FinishedAt.String != "" {
		t := parseTimestamp(r.FinishedAt.String)
		rec.FinishedAt = &t
	}
	urls, err := decodeURLs(r.URLs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse urls of search %d: %w", r.ID, err)
	}
	rec.URLs = urls
	return rec, nil
}

const searchColumns = `id, domain, owner, started_at, finished_at, urls, saved, status, message`

// CreateSearch inserts a running SearchRecord and returns its ID.
func (s *Store) CreateSearch(ctx context.Context, domain, owner string, startedAt time.Time) (int64, error) {
	query := `
	INSERT INTO search_records (domain, owner, started_at, status)
	VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, domain, owner, formatTimestamp(startedAt), model.StatusRunning.String())
	if err != nil {
		return 0, fmt.Errorf("failed to insert search record: %w", err)
	}

	return result.LastInsertId()
}

// GetSearch retrieves a SearchRecord by ID. It returns (nil, nil) when no row matches.
func (s *Store) GetSearch(ctx context.Context, id int64) (*model.SearchRecord, error) {
	var row searchRow
	err := s.db.GetContext(ctx, &row, `SELECT `+searchColumns+` FROM search_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search record: %w", err)
	}
	return row.toModel()
}

// Finalization describes the terminal write applied to a SearchRecord.
type Finalization struct {
	URLs       []string
	Status     model.CrawlStatus
	Message    string
	FinishedAt time.Time

	// KeepExistingURLs leaves a non-empty stored URL list untouched and only
	// fills it when empty. Reconciliation uses this to avoid overwriting
	// results the engine already wrote.
	KeepExistingURLs bool
}

// FinishSearch finalizes a SearchRecord. The write only applies while
// finished_at is NULL, so finalizing an already-finished record is a no-op.
// It reports whether the row changed.
//
// finished_at is clamped to started_at so it never precedes it.
func (s *Store) FinishSearch(ctx context.Context, id int64, fin Finalization) (bool, error) {
	urlsJSON, err := encodeURLs(fin.URLs)
	if err != nil {
		return false, err
	}

	query := `
	UPDATE search_records SET
		finished_at = MAX(?, started_at),
		urls = CASE WHEN ? AND urls != '[]' THEN urls ELSE ? END,
		status = ?,
		message = ?
	WHERE id = ? AND finished_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query,
		formatTimestamp(fin.FinishedAt),
		fin.KeepExistingURLs,
		urlsJSON,
		fin.Status.String(),
		fin.Message,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finish search record: %w", err)
	}

	return affected(result)
}

// SetSaved toggles the curation flag of a SearchRecord. It reports whether the
// record exists.
func (s *Store) SetSaved(ctx context.Context, id int64, saved bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE search_records SET saved = ? WHERE id = ?`, saved, id)
	if err != nil {
		return false, fmt.Errorf("failed to update saved flag: %w", err)
	}
	return affected(result)
}

// SearchFilter narrows ListSearches. Zero values disable a filter.
type SearchFilter struct {
	Domain    string
	Owner     string
	SavedOnly bool
	Limit     int
}

// ListSearches returns SearchRecords newest first.
func (s *Store) ListSearches(ctx context.Context, filter SearchFilter) ([]*model.SearchRecord, error) {
	query := `SELECT ` + searchColumns + ` FROM search_records WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.Domain != "" {
		query += " AND domain = ?"
		args = append(args, filter.Domain)
	}
	if filter.Owner != "" {
		query += " AND owner = ?"
		args = append(args, filter.Owner)
	}
	if filter.SavedOnly {
		query += " AND saved = 1"
	}

	query += " ORDER BY started_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []searchRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list search records: %w", err)
	}

	return searchRowsToModels(rows)
}

// ListOrphanSearches returns unfinished SearchRecords started before cutoff
// that no running ProgressState still references.
func (s *Store) ListOrphanSearches(ctx context.Context, cutoff time.Time) ([]*model.SearchRecord, error) {
	query := `
	SELECT ` + searchColumns + ` FROM search_records s
	WHERE s.finished_at IS NULL AND s.started_at < ?
	AND NOT EXISTS (
		SELECT 1 FROM crawl_progress p WHERE p.search_id = s.id AND p.done = 0
	)
	ORDER BY s.id
	`

	var rows []searchRow
	if err := s.db.SelectContext(ctx, &rows, query, formatTimestamp(cutoff)); err != nil {
		return nil, fmt.Errorf("failed to list orphan search records: %w", err)
	}

	return searchRowsToModels(rows)
}

func searchRowsToModels(rows []searchRow) ([]*model.SearchRecord, error) {
	records := make([]*model.SearchRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func encodeURLs(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("failed to serialize urls: %w", err)
	}
	return string(data), nil
}

func decodeURLs(s string) ([]string, error) {
	urls := []string{}
	if s == "" {
		return urls, nil
	}
	if err := json.Unmarshal([]byte(s), &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
