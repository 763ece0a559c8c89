package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// SQLiteFileMetadataStore persists file metadata with a UNIQUE checksum
// index enforcing content-level deduplication at the storage layer.
type SQLiteFileMetadataStore struct {
	db *sql.DB
}

// NewSQLiteFileMetadataStore wraps db and runs migrations.
func NewSQLiteFileMetadataStore(db *sql.DB) (*SQLiteFileMetadataStore, error) {
	s := &SQLiteFileMetadataStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteFileMetadataStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS file_metadata (
        file_id TEXT PRIMARY KEY,
        file_name TEXT NOT NULL,
        file_path TEXT NOT NULL,
        source_url TEXT,
        download_ts TEXT NOT NULL,
        checksum TEXT NOT NULL,
        file_size_bytes INTEGER NOT NULL,
        format TEXT NOT NULL
    );
    CREATE UNIQUE INDEX IF NOT EXISTS idx_file_checksum ON file_metadata(checksum);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save inserts fm. A checksum collision returns ErrDuplicateChecksum.
func (s *SQLiteFileMetadataStore) Save(ctx context.Context, fm contracts.FileMetadata) error {
	query := `INSERT INTO file_metadata (
        file_id, file_name, file_path, source_url, download_ts, checksum, file_size_bytes, format
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(checksum) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		fm.FileID,
		fm.FileName,
		fm.FilePath,
		nullable(fm.SourceURL),
		fm.DownloadTimestamp.UTC().Format(time.RFC3339Nano),
		fm.Checksum,
		fm.FileSizeBytes,
		string(fm.Format),
	)
	if err != nil {
		return fmt.Errorf("failed to insert file metadata: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicateChecksum
	}
	return nil
}

// GetByID returns the record for fileID.
func (s *SQLiteFileMetadataStore) GetByID(ctx context.Context, fileID string) (contracts.FileMetadata, error) {
	return s.queryOne(ctx, `WHERE file_id = ?`, fileID)
}

// GetByChecksum returns the record owning checksum.
func (s *SQLiteFileMetadataStore) GetByChecksum(ctx context.Context, checksum string) (contracts.FileMetadata, error) {
	return s.queryOne(ctx, `WHERE checksum = ?`, checksum)
}

// List returns all records ordered by download time.
func (s *SQLiteFileMetadataStore) List(ctx context.Context) ([]contracts.FileMetadata, error) {
	query := `
        SELECT file_id, file_name, file_path, source_url, download_ts, checksum, file_size_bytes, format
        FROM file_metadata
        ORDER BY download_ts ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.FileMetadata
	for rows.Next() {
		var (
			fm        contracts.FileMetadata
			sourceURL sql.NullString
			ts        string
			format    string
		)
		if err := rows.Scan(&fm.FileID, &fm.FileName, &fm.FilePath, &sourceURL, &ts, &fm.Checksum, &fm.FileSizeBytes, &format); err != nil {
			return nil, err
		}
		fm.SourceURL = sourceURL.String
		fm.DownloadTimestamp = parseTime(ts)
		fm.Format = contracts.FileFormat(format)
		out = append(out, fm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteFileMetadataStore) queryOne(ctx context.Context, where string, arg any) (contracts.FileMetadata, error) {
	query := `
        SELECT file_id, file_name, file_path, source_url, download_ts, checksum, file_size_bytes, format
        FROM file_metadata ` + where
	row := s.db.QueryRowContext(ctx, query, arg)

	var (
		fm        contracts.FileMetadata
		sourceURL sql.NullString
		ts        string
		format    string
	)
	err := row.Scan(&fm.FileID, &fm.FileName, &fm.FilePath, &sourceURL, &ts, &fm.Checksum, &fm.FileSizeBytes, &format)
	if err == sql.ErrNoRows {
		return contracts.FileMetadata{}, ErrNotFound
	}
	if err != nil {
		return contracts.FileMetadata{}, err
	}
	fm.SourceURL = sourceURL.String
	fm.DownloadTimestamp = parseTime(ts)
	fm.Format = contracts.FileFormat(format)
	return fm, nil
}
