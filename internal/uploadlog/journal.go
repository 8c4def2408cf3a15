package uploadlog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/treeup/internal/db"
	"github.com/openmined/treeup/internal/uploader"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS uploads (
    destination_path TEXT PRIMARY KEY,
    source_path TEXT NOT NULL,
    client_modified TEXT NOT NULL, -- RFC3339
    remote_id TEXT NOT NULL,
    server_modified TEXT NOT NULL, -- RFC3339
    rev TEXT NOT NULL,
    size INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    uploaded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_uploads_source ON uploads(source_path);
`

type dbUpload struct {
	DestinationPath string `db:"destination_path"`
	SourcePath      string `db:"source_path"`
	ClientModified  string `db:"client_modified"`
	RemoteID        string `db:"remote_id"`
	ServerModified  string `db:"server_modified"`
	Rev             string `db:"rev"`
	Size            int64  `db:"size"`
	ContentHash     string `db:"content_hash"`
	UploadedAt      string `db:"uploaded_at"`
}

// Journal keeps the latest completed upload per destination path in SQLite.
type Journal struct {
	db *sqlx.DB
}

// OpenJournal opens or creates the journal database at path. ":memory:" is allowed.
func OpenJournal(path string) (*Journal, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open upload journal: %w", err)
	}

	if _, err := conn.Exec(journalSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init upload journal schema: %w", err)
	}

	return &Journal{db: conn}, nil
}

// Record implements walker.Recorder.
func (j *Journal) Record(res *uploader.Result) error {
	return j.Put(NewRecord(res))
}

// Put inserts or replaces the entry for rec.DestinationPath.
func (j *Journal) Put(rec *Record) error {
	_, err := j.db.NamedExec(`
		INSERT OR REPLACE INTO uploads
			(destination_path, source_path, client_modified, remote_id, server_modified, rev, size, content_hash, uploaded_at)
		VALUES
			(:destination_path, :source_path, :client_modified, :remote_id, :server_modified, :rev, :size, :content_hash, :uploaded_at)`,
		&dbUpload{
			DestinationPath: rec.DestinationPath,
			SourcePath:      rec.SourcePath,
			ClientModified:  formatTime(rec.ClientModified),
			RemoteID:        rec.ID,
			ServerModified:  formatTime(rec.ServerModified),
			Rev:             rec.Rev,
			Size:            rec.Size,
			ContentHash:     rec.ContentHash,
			UploadedAt:      time.Now().UTC().Format(time.RFC3339),
		})
	if err != nil {
		return fmt.Errorf("journal put %s: %w", rec.DestinationPath, err)
	}
	return nil
}

// Get returns the entry for destinationPath, or nil when there is none.
func (j *Journal) Get(destinationPath string) (*Record, error) {
	var row dbUpload
	err := j.db.Get(&row, "SELECT * FROM uploads WHERE destination_path = ?", destinationPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal get %s: %w", destinationPath, err)
	}
	return row.record()
}

// Count returns the number of journaled uploads.
func (j *Journal) Count() (int, error) {
	var n int
	if err := j.db.Get(&n, "SELECT COUNT(*) FROM uploads"); err != nil {
		return 0, err
	}
	return n, nil
}

func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		slog.Error("close upload journal", "error", err)
		return err
	}
	return nil
}

func (r *dbUpload) record() (*Record, error) {
	clientModified, err := parseTime(r.ClientModified)
	if err != nil {
		return nil, fmt.Errorf("parse client_modified for %s: %w", r.DestinationPath, err)
	}
	serverModified, err := parseTime(r.ServerModified)
	if err != nil {
		return nil, fmt.Errorf("parse server_modified for %s: %w", r.DestinationPath, err)
	}

	return &Record{
		SourcePath:      r.SourcePath,
		ClientModified:  clientModified,
		DestinationPath: r.DestinationPath,
		ID:              r.RemoteID,
		ServerModified:  serverModified,
		Rev:             r.Rev,
		Size:            r.Size,
		ContentHash:     r.ContentHash,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
