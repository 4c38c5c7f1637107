package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/crawlscope/internal/model"
)

// progressRow is the storage shape of model.ProgressState.
type progressRow struct {
	Key           string        `db:"progress_key"`
	Domain        string        `db:"domain"`
	Owner         string        `db:"owner"`
	Count         int           `db:"count"`
	LastURL       string        `db:"last_url"`
	URLs          string        `db:"urls"`
	Done          bool          `db:"done"`
	StopRequested bool          `db:"stop_requested"`
	SearchID      sql.NullInt64 `db:"search_id"`
	UpdatedAt     string        `db:"updated_at"`
}

func (r *progressRow) toModel() (*model.ProgressState, error) {
	st := &model.ProgressState{
		Key:           r.Key,
		Domain:        r.Domain,
		Owner:         r.Owner,
		Count:         r.Count,
		LastURL:       r.LastURL,
		Done:          r.Done,
		StopRequested: r.StopRequested,
		UpdatedAt:     parseTimestamp(r.UpdatedAt),
	}
	if r.SearchID.Valid {
		id := r.SearchID.Int64
		st.SearchID = &id
	}
	urls, err := decodeURLs(r.URLs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse urls of progress %s: %w", r.Key, err)
	}
	st.URLs = urls
	return st, nil
}

const progressColumns = `progress_key, domain, owner, count, last_url, urls, done, stop_requested, search_id, updated_at`

// CreateProgress inserts a fresh ProgressState row.
func (s *Store) CreateProgress(ctx context.Context, key, domain, owner string, searchID *int64, at time.Time) error {
	query := `
	INSERT INTO crawl_progress (progress_key, domain, owner, search_id, updated_at)
	VALUES (:progress_key, :domain, :owner, :search_id, :updated_at)
	`

	row := progressRow{
		Key:       key,
		Domain:    domain,
		Owner:     owner,
		UpdatedAt: formatTimestamp(at),
	}
	if searchID != nil {
		row.SearchID = sql.NullInt64{Int64: *searchID, Valid: true}
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert progress: %w", err)
	}
	return nil
}

// GetProgress retrieves a ProgressState by key. It returns (nil, nil) when no row matches.
func (s *Store) GetProgress(ctx context.Context, key string) (*model.ProgressState, error) {
	var row progressRow
	err := s.db.GetContext(ctx, &row, `SELECT `+progressColumns+` FROM crawl_progress WHERE progress_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return row.toModel()
}

// AppendProgressURL records a fetched page on a running ProgressState.
// The URL is appended only when absent; count, last_url and updated_at move
// in the same statement. Nothing changes once the row is done, and the
// return value reports whether the write applied.
func (s *Store) AppendProgressURL(ctx context.Context, key, pageURL string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current struct {
		URLs string `db:"urls"`
		Done bool   `db:"done"`
	}
	err = tx.GetContext(ctx, &current, `SELECT urls, done FROM crawl_progress WHERE progress_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && current.Done) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read progress: %w", err)
	}

	urls, err := decodeURLs(current.URLs)
	if err != nil {
		return false, fmt.Errorf("failed to parse progress urls: %w", err)
	}
	if !slices.Contains(urls, pageURL) {
		urls = append(urls, pageURL)
	}
	urlsJSON, err := encodeURLs(urls)
	if err != nil {
		return false, err
	}

	query := `
	UPDATE crawl_progress SET
		urls = ?,
		count = ?,
		last_url = ?,
		updated_at = ?
	WHERE progress_key = ? AND done = 0
	`
	result, err := tx.ExecContext(ctx, query, urlsJSON, len(urls), pageURL, formatTimestamp(at), key)
	if err != nil {
		return false, fmt.Errorf("failed to update progress: %w", err)
	}
	applied, err := affected(result)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit progress: %w", err)
	}
	return applied, nil
}

// MarkProgressDone flips done on a running ProgressState in one statement.
// When stopRequested is true the stop flag flips with it. Rows that are
// already done are left untouched; the return value reports whether the
// write applied.
func (s *Store) MarkProgressDone(ctx context.Context, key string, stopRequested bool, at time.Time) (bool, error) {
	query := `
	UPDATE crawl_progress SET
		done = 1,
		stop_requested = ?,
		updated_at = ?
	WHERE progress_key = ? AND done = 0
	`

	result, err := s.db.ExecContext(ctx, query, stopRequested, formatTimestamp(at), key)
	if err != nil {
		return false, fmt.Errorf("failed to mark progress done: %w", err)
	}
	return affected(result)
}

// ProgressFilter narrows ListProgress. Zero values disable a filter.
type ProgressFilter struct {
	Owner        string
	UpdatedSince time.Time
	NotDoneOnly  bool
}

// ListProgress returns ProgressState rows, most recently updated first.
func (s *Store) ListProgress(ctx context.Context, filter ProgressFilter) ([]*model.ProgressState, error) {
	query := `SELECT ` + progressColumns + ` FROM crawl_progress WHERE 1=1`
	args := make([]any, 0, 2)

	if filter.Owner != "" {
		query += " AND owner = ?"
		args = append(args, filter.Owner)
	}
	if !filter.UpdatedSince.IsZero() {
		query += " AND updated_at >= ?"
		args = append(args, formatTimestamp(filter.UpdatedSince))
	}
	if filter.NotDoneOnly {
		query += " AND done = 0"
	}

	query += " ORDER BY updated_at DESC"

	return s.selectProgress(ctx, query, args...)
}

// ListStaleProgress returns running ProgressState rows last updated before cutoff.
func (s *Store) ListStaleProgress(ctx context.Context, cutoff time.Time) ([]*model.ProgressState, error) {
	query := `
	SELECT ` + progressColumns + ` FROM crawl_progress
	WHERE done = 0 AND updated_at < ?
	ORDER BY updated_at
	`
	return s.selectProgress(ctx, query, formatTimestamp(cutoff))
}

// ListDoneProgressWithOpenSearch returns done ProgressState rows whose linked
// SearchRecord is still unfinished.
func (s *Store) ListDoneProgressWithOpenSearch(ctx context.Context) ([]*model.ProgressState, error) {
	query := `
	SELECT p.progress_key, p.domain, p.owner, p.count, p.last_url, p.urls,
		p.done, p.stop_requested, p.search_id, p.updated_at
	FROM crawl_progress p
	JOIN search_records s ON s.id = p.search_id
	WHERE p.done = 1 AND s.finished_at IS NULL
	ORDER BY p.updated_at
	`
	return s.selectProgress(ctx, query)
}

// ListOpenProgressWithFinishedSearch returns running ProgressState rows whose
// linked SearchRecord is already finished.
func (s *Store) ListOpenProgressWithFinishedSearch(ctx context.Context) ([]*model.ProgressState, error) {
	query := `
	SELECT p.progress_key, p.domain, p.owner, p.count, p.last_url, p.urls,
		p.done, p.stop_requested, p.search_id, p.updated_at
	FROM crawl_progress p
	JOIN search_records s ON s.id = p.search_id
	WHERE p.done = 0 AND s.finished_at IS NOT NULL
	ORDER BY p.updated_at
	`
	return s.selectProgress(ctx, query)
}

func (s *Store) selectProgress(ctx context.Context, query string, args ...any) ([]*model.ProgressState, error) {
	var rows []progressRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}

	states := make([]*model.ProgressState, 0, len(rows))
	for i := range rows {
		st, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}
