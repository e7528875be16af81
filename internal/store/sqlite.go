// Package store persists PDF assets, their analysis records, and collection
// results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/literature"
)

// DB wraps a SQLite database connection.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates a SQLite database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			original_name TEXT NOT NULL,
			sanitized_name TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			uploaded_at TEXT NOT NULL,
			source_url TEXT
		);

		-- One analysis record per asset, keyed by the asset id
		CREATE TABLE IF NOT EXISTS analyses (
			pdf_id TEXT PRIMARY KEY REFERENCES assets(id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK (status IN ('pending', 'analyzing', 'completed', 'error')),
			extraction_json TEXT,
			judgment_json TEXT,
			error_message TEXT,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);

		CREATE TABLE IF NOT EXISTS collections (
			id TEXT PRIMARY KEY,
			primary_name TEXT NOT NULL,
			result_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// SaveAsset inserts a and its pending analysis record.
func (d *DB) SaveAsset(ctx context.Context, a *document.Asset) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assets (id, original_name, sanitized_name, storage_path, size_bytes, uploaded_at, source_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.OriginalFileName, a.SanitizedFileName, a.StoragePath, a.SizeBytes,
		formatTime(a.UploadedAt), nullableString(a.SourceURL))
	if err != nil {
		return fmt.Errorf("inserting asset %s: %w", a.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (pdf_id, status, updated_at) VALUES (?, ?, ?)
	`, a.ID, document.StatusPending, formatTime(d.now()))
	if err != nil {
		return fmt.Errorf("inserting analysis record %s: %w", a.ID, err)
	}
	return tx.Commit()
}

const selectAssetFields = `a.id, a.original_name, a.sanitized_name, a.storage_path,
	a.size_bytes, a.uploaded_at, a.source_url`

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner, extra ...any) (*document.Asset, error) {
	var (
		a          document.Asset
		uploadedAt string
		sourceURL  sql.NullString
	)
	dest := append([]any{&a.ID, &a.OriginalFileName, &a.SanitizedFileName, &a.StoragePath,
		&a.SizeBytes, &uploadedAt, &sourceURL}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.UploadedAt = parseTime(uploadedAt)
	a.SourceURL = sourceURL.String
	return &a, nil
}

// GetAsset returns the asset with id.
func (d *DB) GetAsset(ctx context.Context, id string) (*document.Asset, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectAssetFields+` FROM assets a WHERE a.id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pdf %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset %s: %w", id, err)
	}
	return a, nil
}

// ListAssets returns every asset with its analysis status, oldest first.
func (d *DB) ListAssets(ctx context.Context) ([]document.AssetWithStatus, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectAssetFields+`, r.status
		FROM assets a JOIN analyses r ON r.pdf_id = a.id
		ORDER BY a.uploaded_at, a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var out []document.AssetWithStatus
	for rows.Next() {
		var status string
		a, err := scanAsset(rows, &status)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		out = append(out, document.AssetWithStatus{Asset: *a, Status: document.Status(status)})
	}
	return out, rows.Err()
}

// ListByStatus returns asset ids whose record has one of statuses, in upload
// order.
func (d *DB) ListByStatus(ctx context.Context, statuses ...document.Status) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT a.id FROM assets a JOIN analyses r ON r.pdf_id = a.id WHERE r.status IN (?`
	args := []any{string(statuses[0])}
	for _, s := range statuses[1:] {
		query += `, ?`
		args = append(args, string(s))
	}
	query += `) ORDER BY a.uploaded_at, a.id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetRecord returns the analysis record for pdfID.
func (d *DB) GetRecord(ctx context.Context, pdfID string) (*document.Record, error) {
	var (
		r              document.Record
		status         string
		extractionJSON sql.NullString
		judgmentJSON   sql.NullString
		errorMessage   sql.NullString
		updatedAt      string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT pdf_id, status, extraction_json, judgment_json, error_message, updated_at
		FROM analyses WHERE pdf_id = ?
	`, pdfID).Scan(&r.PDFID, &status, &extractionJSON, &judgmentJSON, &errorMessage, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis record %s: %w", pdfID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying analysis record %s: %w", pdfID, err)
	}

	r.Status = document.Status(status)
	r.ErrorMessage = errorMessage.String
	r.UpdatedAt = parseTime(updatedAt)
	if extractionJSON.Valid {
		r.Extraction = &document.Extraction{}
		if err := json.Unmarshal([]byte(extractionJSON.String), r.Extraction); err != nil {
			return nil, fmt.Errorf("parsing extraction for %s: %w", pdfID, err)
		}
	}
	if judgmentJSON.Valid {
		r.Judgment = &document.Judgment{}
		if err := json.Unmarshal([]byte(judgmentJSON.String), r.Judgment); err != nil {
			return nil, fmt.Errorf("parsing judgment for %s: %w", pdfID, err)
		}
	}
	return &r, nil
}

// BeginAnalysis moves pdfID to analyzing. The update is a single conditional
// statement, so of two concurrent triggers exactly one succeeds; the other
// gets document.ErrAlreadyAnalyzing.
func (d *DB) BeginAnalysis(ctx context.Context, pdfID string) (*document.Record, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE analyses SET status = ?, error_message = NULL, updated_at = ?
		WHERE pdf_id = ? AND status <> ?
	`, document.StatusAnalyzing, formatTime(d.now()), pdfID, document.StatusAnalyzing)
	if err != nil {
		return nil, fmt.Errorf("starting analysis %s: %w", pdfID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("starting analysis %s: %w", pdfID, err)
	}
	if n == 0 {
		if _, err := d.GetRecord(ctx, pdfID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("pdf %s: %w", pdfID, document.ErrAlreadyAnalyzing)
	}
	return d.GetRecord(ctx, pdfID)
}

// SaveExtraction stores ext on an in-flight analysis.
func (d *DB) SaveExtraction(ctx context.Context, pdfID string, ext *document.Extraction) error {
	extJSON, err := marshalNullable(ext)
	if err != nil {
		return fmt.Errorf("marshaling extraction: %w", err)
	}
	return d.finish(ctx, pdfID, `
		UPDATE analyses SET extraction_json = ?, updated_at = ?
		WHERE pdf_id = ? AND status = 'analyzing'
	`, extJSON, formatTime(d.now()), pdfID)
}

// CompleteAnalysis moves pdfID from analyzing to completed.
func (d *DB) CompleteAnalysis(ctx context.Context, pdfID string, j *document.Judgment) error {
	jJSON, err := marshalNullable(j)
	if err != nil {
		return fmt.Errorf("marshaling judgment: %w", err)
	}
	return d.finish(ctx, pdfID, `
		UPDATE analyses SET status = 'completed', judgment_json = ?, error_message = NULL, updated_at = ?
		WHERE pdf_id = ? AND status = 'analyzing'
	`, jJSON, formatTime(d.now()), pdfID)
}

// FailAnalysis moves pdfID from analyzing to error. Any stored extraction is
// kept for the next attempt.
func (d *DB) FailAnalysis(ctx context.Context, pdfID, message string) error {
	return d.finish(ctx, pdfID, `
		UPDATE analyses SET status = 'error', error_message = ?, updated_at = ?
		WHERE pdf_id = ? AND status = 'analyzing'
	`, message, formatTime(d.now()), pdfID)
}

func (d *DB) finish(ctx context.Context, pdfID, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating analysis %s: %w", pdfID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating analysis %s: %w", pdfID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: analysis %s is not in progress", apperr.ErrInternal, pdfID)
	}
	return nil
}

// RecoverInterrupted marks records left analyzing by a previous process as
// errors so they can be re-triggered.
func (d *DB) RecoverInterrupted(ctx context.Context) (int, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE analyses SET status = 'error', error_message = 'analysis interrupted', updated_at = ?
		WHERE status = 'analyzing'
	`, formatTime(d.now()))
	if err != nil {
		return 0, fmt.Errorf("recovering interrupted analyses: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SaveCollection stores a collection result for later retrieval.
func (d *DB) SaveCollection(ctx context.Context, r *literature.CollectionResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling collection: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO collections (id, primary_name, result_json, created_at) VALUES (?, ?, ?, ?)
	`, r.CollectionID, r.Query.PrimaryName, string(b), formatTime(d.now()))
	if err != nil {
		return fmt.Errorf("saving collection %s: %w", r.CollectionID, err)
	}
	return nil
}

// GetCollection returns a stored collection result.
func (d *DB) GetCollection(ctx context.Context, id string) (*literature.CollectionResult, error) {
	var raw string
	err := d.db.QueryRowContext(ctx, `SELECT result_json FROM collections WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", id, err)
	}
	var r literature.CollectionResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("parsing collection %s: %w", id, err)
	}
	return &r, nil
}
