package uploader

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/openmined/treeup/internal/contenthash"
	"github.com/openmined/treeup/internal/remote"
)

type call struct {
	Op     string
	Size   int
	Offset int64
	Path   string
	Mode   remote.CommitMode
}

// fakeStorage is an in-memory remote that records every call it receives.
type fakeStorage struct {
	mu       sync.Mutex
	calls    []call
	sessions map[string]*bytes.Buffer
	files    map[string][]byte
	nextID   int

	failOn    string
	failWith  error
	sizeDelta int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		sessions: make(map[string]*bytes.Buffer),
		files:    make(map[string][]byte),
	}
}

func (f *fakeStorage) record(c call) error {
	f.calls = append(f.calls, c)
	if f.failOn == c.Op {
		return f.failWith
	}
	return nil
}

func (f *fakeStorage) commit(data []byte, commit *remote.CommitInfo) *remote.Metadata {
	f.nextID++
	f.files[commit.Path] = data
	return &remote.Metadata{
		ID:             fmt.Sprintf("id:%d", f.nextID),
		Name:           path.Base(commit.Path),
		PathDisplay:    commit.Path,
		Size:           int64(len(data)) + f.sizeDelta,
		ContentHash:    contenthash.Bytes(data),
		Rev:            fmt.Sprintf("rev%d", f.nextID),
		ClientModified: commit.ClientModified,
		ServerModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (f *fakeStorage) UploadOneshot(_ context.Context, data []byte, commit *remote.CommitInfo) (*remote.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{Op: "oneshot", Size: len(data), Path: commit.Path, Mode: commit.Mode}); err != nil {
		return nil, err
	}
	return f.commit(bytes.Clone(data), commit), nil
}

func (f *fakeStorage) SessionStart(_ context.Context, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{Op: "start", Size: len(data)}); err != nil {
		return "", err
	}
	id := fmt.Sprintf("session-%d", len(f.sessions)+1)
	f.sessions[id] = bytes.NewBuffer(bytes.Clone(data))
	return id, nil
}

func (f *fakeStorage) SessionAppend(_ context.Context, data []byte, cursor *remote.Cursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{Op: "append", Size: len(data), Offset: cursor.Offset}); err != nil {
		return err
	}
	buf, ok := f.sessions[cursor.SessionID]
	if !ok {
		return fmt.Errorf("%w: unknown session", remote.ErrRejected)
	}
	if int64(buf.Len()) != cursor.Offset {
		return fmt.Errorf("%w: incorrect offset %d, want %d", remote.ErrRejected, cursor.Offset, buf.Len())
	}
	buf.Write(data)
	return nil
}

func (f *fakeStorage) SessionFinish(_ context.Context, data []byte, cursor *remote.Cursor, commit *remote.CommitInfo) (*remote.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{Op: "finish", Size: len(data), Offset: cursor.Offset, Path: commit.Path, Mode: commit.Mode}); err != nil {
		return nil, err
	}
	buf, ok := f.sessions[cursor.SessionID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session", remote.ErrRejected)
	}
	if int64(buf.Len()) != cursor.Offset {
		return nil, fmt.Errorf("%w: incorrect offset %d, want %d", remote.ErrRejected, cursor.Offset, buf.Len())
	}
	buf.Write(data)
	delete(f.sessions, cursor.SessionID)
	return f.commit(buf.Bytes(), commit), nil
}

func (f *fakeStorage) ops() []string {
	ops := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ops = append(ops, fmt.Sprintf("%s(%d)", c.Op, c.Size))
	}
	return ops
}

var _ remote.Storage = (*fakeStorage)(nil)
