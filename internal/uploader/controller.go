package uploader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/openmined/treeup/internal/contenthash"
	"github.com/openmined/treeup/internal/remote"
)

const (
	KiB = 1024
	MiB = KiB * KiB

	// DefaultChunkSize is the largest body the remote accepts per call.
	DefaultChunkSize = 150 * MiB
	// DefaultPause is the delay between non-terminal chunk calls.
	DefaultPause = 500 * time.Millisecond
)

// Result is the outcome of a completed file upload.
type Result struct {
	Target    *UploadTarget
	Metadata  *remote.Metadata
	Offset    int64
	Calls     int
	LocalHash string
}

type Option func(*Controller)

// WithChunkSize sets the chunk size. Values below 1 are ignored.
func WithChunkSize(size int) Option {
	return func(c *Controller) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithPause sets the delay inserted between non-terminal chunk calls.
func WithPause(d time.Duration) Option {
	return func(c *Controller) {
		c.pause = d
	}
}

// WithMode sets the commit mode used for both oneshot uploads and session finishes.
func WithMode(mode remote.CommitMode) Option {
	return func(c *Controller) {
		c.mode = mode
	}
}

// WithDenyList replaces the default deny-list.
func WithDenyList(deny *DenyList) Option {
	return func(c *Controller) {
		c.deny = deny
	}
}

// Controller drives a file through the chunked upload protocol:
// a file shorter than one chunk goes up in a single call, anything else
// opens a session, appends full chunks and finishes on the first short read.
type Controller struct {
	storage   remote.Storage
	chunkSize int
	pause     time.Duration
	mode      remote.CommitMode
	deny      *DenyList
}

func NewController(storage remote.Storage, opts ...Option) *Controller {
	c := &Controller{
		storage:   storage,
		chunkSize: DefaultChunkSize,
		pause:     DefaultPause,
		mode:      remote.ModeAdd,
		deny:      NewDenyList(DefaultDenyList...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize returns the chunk size in use.
func (c *Controller) ChunkSize() int {
	return c.chunkSize
}

// Upload sends target to the remote. Cancelling ctx stops the upload between
// chunks; a chunk call that is already in flight always runs to completion.
func (c *Controller) Upload(ctx context.Context, target *UploadTarget) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.deny.Denied(target.SourcePath) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedName, target.SourcePath)
	}

	file, err := os.Open(target.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target.SourcePath)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, target.SourcePath, err)
	}
	defer file.Close()

	commit := &remote.CommitInfo{
		Path:           target.DestinationPath,
		ClientModified: target.ClientModified,
		Mode:           c.mode,
	}
	reader := NewChunkReader(file, c.chunkSize)
	hasher := contenthash.New()
	session := &Session{}
	calls := 0

	for session.Phase != Done {
		if calls > 0 {
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
		}

		if err := c.uploadNextChunk(ctx, reader, hasher, session, commit); err != nil {
			return nil, fmt.Errorf("%s (offset=%d phase=%s): %w", target.SourcePath, session.Offset, session.Phase, err)
		}
		calls++
	}

	meta := session.Metadata
	if meta.Size != session.Offset {
		slog.Warn("uploaded size mismatch", "path", target.SourcePath, "remoteSize", meta.Size, "localSize", session.Offset)
	}

	localHash := hasher.Hex()
	if meta.ContentHash != "" && meta.ContentHash != localHash {
		slog.Warn("content hash mismatch", "path", target.SourcePath, "remoteHash", meta.ContentHash, "localHash", localHash)
	}

	slog.Debug("upload complete",
		"path", target.SourcePath,
		"dest", target.DestinationPath,
		"id", meta.ID,
		"clientModified", meta.ClientModified,
		"serverModified", meta.ServerModified,
		"rev", meta.Rev,
		"size", meta.Size,
		"contentHash", meta.ContentHash,
		"calls", calls,
	)

	return &Result{
		Target:    target,
		Metadata:  meta,
		Offset:    session.Offset,
		Calls:     calls,
		LocalHash: localHash,
	}, nil
}

// uploadNextChunk reads one chunk and sends it with the call the session's phase requires.
// Whether a chunk is the last one is decided after the read: only a short read ends the file,
// so a file that is an exact multiple of the chunk size finishes with an empty chunk.
func (c *Controller) uploadNextChunk(ctx context.Context, reader *ChunkReader, hasher *contenthash.Hash, session *Session, commit *remote.CommitInfo) error {
	chunk, offset, err := reader.ReadChunk()
	if err != nil {
		return fmt.Errorf("%w: read chunk: %w", ErrIO, err)
	}
	hasher.Write(chunk)

	last := len(chunk) < reader.ChunkSize()
	callCtx := context.WithoutCancel(ctx)

	switch {
	case session.Phase == NoSession && last:
		meta, err := c.storage.UploadOneshot(callCtx, chunk, commit)
		if err != nil {
			return remoteError("upload", err)
		}
		session.finish(meta)

	case session.Phase == NoSession:
		sessionID, err := c.storage.SessionStart(callCtx, chunk)
		if err != nil {
			return remoteError("session start", err)
		}
		session.open(sessionID)

	case session.Phase == SessionOpen && last:
		meta, err := c.storage.SessionFinish(callCtx, chunk, session.cursor(), commit)
		if err != nil {
			return remoteError("session finish", err)
		}
		session.finish(meta)

	case session.Phase == SessionOpen:
		if err := c.storage.SessionAppend(callCtx, chunk, session.cursor()); err != nil {
			return remoteError("session append", err)
		}

	default:
		return fmt.Errorf("unexpected session phase %s", session.Phase)
	}

	session.Offset = offset
	if session.Phase == Done && session.Metadata == nil {
		return fmt.Errorf("%w: %s returned no metadata", ErrRemoteRejected, commit.Path)
	}
	return nil
}

func (c *Controller) wait(ctx context.Context) error {
	if c.pause <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(c.pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// remoteError makes sure every remote failure carries one of the remote error kinds.
func remoteError(op string, err error) error {
	if errors.Is(err, ErrDisallowedName) || errors.Is(err, ErrRemoteRejected) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteRejected, err)
}
