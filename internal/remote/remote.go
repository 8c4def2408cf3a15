package remote

import (
	"context"
	"time"
)

// CommitMode selects what happens when the destination path already exists.
type CommitMode string

const (
	// ModeAdd refuses to replace an existing file. The remote reports a conflict.
	ModeAdd CommitMode = "add"
	// ModeOverwrite replaces whatever is stored at the destination path.
	ModeOverwrite CommitMode = "overwrite"
)

func (m CommitMode) Valid() bool {
	return m == ModeAdd || m == ModeOverwrite
}

// CommitInfo is attached to the call that finalizes a file (oneshot upload or session finish).
type CommitInfo struct {
	Path           string
	ClientModified time.Time
	Mode           CommitMode
}

// Cursor identifies a position within an open upload session.
type Cursor struct {
	SessionID string
	Offset    int64
}

// Metadata describes a file after the remote has committed it.
type Metadata struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PathDisplay    string    `json:"path_display"`
	Size           int64     `json:"size"`
	ContentHash    string    `json:"content_hash"`
	Rev            string    `json:"rev"`
	ClientModified time.Time `json:"client_modified"`
	ServerModified time.Time `json:"server_modified"`
}

// Storage is the remote object store as seen by the upload session controller.
type Storage interface {
	// UploadOneshot stores data at commit.Path in a single call.
	UploadOneshot(ctx context.Context, data []byte, commit *CommitInfo) (*Metadata, error)
	// SessionStart opens an upload session seeded with data and returns its id.
	SessionStart(ctx context.Context, data []byte) (string, error)
	// SessionAppend adds data to the session at cursor.Offset.
	SessionAppend(ctx context.Context, data []byte, cursor *Cursor) error
	// SessionFinish appends the trailing data and commits the session to commit.Path.
	SessionFinish(ctx context.Context, data []byte, cursor *Cursor, commit *CommitInfo) (*Metadata, error)
}
