package devserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openmined/treeup/internal/contenthash"
	"github.com/openmined/treeup/internal/uploader"
	"github.com/openmined/treeup/internal/utils"
)

const sessionDir = ".sessions"

type session struct {
	mu     sync.Mutex
	id     string
	file   *os.File
	offset int64
	hash   *contenthash.Hash
	closed bool
}

// close discards the session once no request is writing to it.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.discard()
}

func (s *session) discard() {
	s.file.Close()
	if err := os.Remove(s.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("session cleanup", "session", s.id, "error", err)
	}
}

// Store keeps committed files under a root directory and open sessions in temp files.
// Sessions idle for longer than the ttl are dropped along with their data.
type Store struct {
	root     string
	tmpDir   string
	deny     *uploader.DenyList
	sessions *expirable.LRU[string, *session]

	mu    sync.Mutex
	files map[string]*FileMetadata // by lowercased path
}

func NewStore(root string, maxSessions int, ttl time.Duration) (*Store, error) {
	tmpDir := filepath.Join(root, sessionDir)
	if err := utils.EnsureDir(tmpDir); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	// evictions run under the lru lock while a request may still hold the session
	onEvict := func(id string, s *session) {
		slog.Debug("session closed", "session", id)
		go s.close()
	}

	return &Store{
		root:     root,
		tmpDir:   tmpDir,
		deny:     uploader.NewDenyList(uploader.DefaultDenyList...),
		sessions: expirable.NewLRU(maxSessions, onEvict, ttl),
		files:    make(map[string]*FileMetadata),
	}, nil
}

// Close discards every open session.
func (st *Store) Close() {
	st.sessions.Purge()
}

// Put stores body at the commit path in one go.
func (st *Store) Put(body io.Reader, commit *CommitArg) (*FileMetadata, *routeError) {
	s, rerr := st.newSession()
	if rerr != nil {
		return nil, rerr
	}
	defer s.discard()

	if _, rerr := s.write(body); rerr != nil {
		return nil, rerr
	}
	return st.commit(s, commit)
}

// Start opens a session seeded with body.
func (st *Store) Start(body io.Reader) (string, *routeError) {
	s, rerr := st.newSession()
	if rerr != nil {
		return "", rerr
	}

	if _, rerr := s.write(body); rerr != nil {
		s.discard()
		return "", rerr
	}

	st.sessions.Add(s.id, s)
	slog.Debug("session opened", "session", s.id, "offset", s.offset)
	return s.id, nil
}

// Append adds body to the session at cursor.Offset.
func (st *Store) Append(body io.Reader, cursor *CursorArg) *routeError {
	s, rerr := st.lookup(cursor)
	if rerr != nil {
		return rerr
	}
	defer s.mu.Unlock()

	if _, rerr := s.write(body); rerr != nil {
		return rerr
	}
	// re-adding pushes the expiry out
	st.sessions.Add(s.id, s)
	return nil
}

// Finish appends the trailing body and commits the session.
func (st *Store) Finish(body io.Reader, cursor *CursorArg, commit *CommitArg) (*FileMetadata, *routeError) {
	s, rerr := st.lookup(cursor)
	if rerr != nil {
		return nil, rerr
	}
	// a finished session is gone whether or not the commit succeeds
	defer st.sessions.Remove(s.id)
	defer s.mu.Unlock()

	if _, rerr := s.write(body); rerr != nil {
		return nil, rerr
	}
	return st.commit(s, commit)
}

// Get returns the metadata of a committed file, or nil.
func (st *Store) Get(p string) *FileMetadata {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.files[strings.ToLower(path.Clean(p))]
}

// LocalPath returns where a committed remote path lives on disk.
func (st *Store) LocalPath(p string) string {
	return filepath.Join(st.root, filepath.FromSlash(path.Clean(p)))
}

func (st *Store) newSession() (*session, *routeError) {
	id := uuid.NewString()
	file, err := os.Create(filepath.Join(st.tmpDir, id))
	if err != nil {
		return nil, internalError(err)
	}
	return &session{id: id, file: file, hash: contenthash.New()}, nil
}

// lookup returns the session locked. The caller unlocks it.
func (st *Store) lookup(cursor *CursorArg) (*session, *routeError) {
	s, ok := st.sessions.Get(cursor.SessionID)
	if !ok {
		return nil, conflictError(SummaryNotFound, "session %q", cursor.SessionID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, conflictError(SummaryNotFound, "session %q", cursor.SessionID)
	}
	if s.offset != cursor.Offset {
		s.mu.Unlock()
		return nil, conflictError(SummaryIncorrectOffset, "correct offset %d", s.offset)
	}
	return s, nil
}

func (s *session) write(body io.Reader) (int64, *routeError) {
	n, err := io.Copy(io.MultiWriter(s.file, s.hash), body)
	s.offset += n
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return n, &routeError{status: http.StatusRequestEntityTooLarge, summary: SummaryTooLarge, message: err.Error()}
		}
		return n, internalError(err)
	}
	return n, nil
}

func (st *Store) commit(s *session, commit *CommitArg) (*FileMetadata, *routeError) {
	remotePath, rerr := st.validatePath(commit.Path)
	if rerr != nil {
		return nil, rerr
	}

	clientModified := time.Now().UTC()
	if commit.ClientModified != "" {
		t, err := time.Parse(time.RFC3339, commit.ClientModified)
		if err != nil {
			return nil, &routeError{status: http.StatusBadRequest, summary: "invalid_client_modified/", message: err.Error()}
		}
		clientModified = t
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	prev := st.files[strings.ToLower(remotePath)]
	switch commit.Mode {
	case "", "add":
		if st.exists(remotePath) && commit.Autorename {
			remotePath = st.renamed(remotePath)
			prev = nil
		}
		if st.exists(remotePath) {
			return nil, conflictError(SummaryConflict, "%s already exists", remotePath)
		}
	case "overwrite":
	default:
		return nil, &routeError{status: http.StatusBadRequest, summary: "invalid_mode/", message: commit.Mode}
	}

	localPath := st.LocalPath(remotePath)
	if err := utils.EnsureParent(localPath); err != nil {
		return nil, internalError(err)
	}
	if err := s.file.Sync(); err != nil {
		return nil, internalError(err)
	}
	if err := os.Rename(s.file.Name(), localPath); err != nil {
		return nil, internalError(err)
	}

	id := "id:" + strings.ReplaceAll(uuid.NewString(), "-", "")[:22]
	if prev != nil {
		id = prev.ID
	}

	meta := &FileMetadata{
		Name:           path.Base(remotePath),
		ID:             id,
		ClientModified: formatTime(clientModified),
		ServerModified: formatTime(time.Now()),
		Rev:            strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		Size:           s.offset,
		PathLower:      strings.ToLower(remotePath),
		PathDisplay:    remotePath,
		ContentHash:    s.hash.Hex(),
	}
	st.files[meta.PathLower] = meta

	slog.Info("file committed", "path", meta.PathDisplay, "size", meta.Size, "rev", meta.Rev)
	return meta, nil
}

func (st *Store) validatePath(p string) (string, *routeError) {
	if !strings.HasPrefix(p, "/") {
		return "", conflictError(SummaryMalformedPath, "%q is not absolute", p)
	}
	clean := path.Clean(p)
	first, _, _ := strings.Cut(strings.TrimPrefix(clean, "/"), "/")
	if clean == "/" || first == sessionDir {
		return "", conflictError(SummaryMalformedPath, "%q", p)
	}
	if st.deny.Denied(clean) {
		return "", conflictError(SummaryDisallowedName, "%q", path.Base(clean))
	}
	return clean, nil
}

// exists also looks at the disk, so files from an earlier run conflict too. Caller holds st.mu.
func (st *Store) exists(p string) bool {
	if _, ok := st.files[strings.ToLower(p)]; ok {
		return true
	}
	return utils.FileExists(st.LocalPath(p))
}

// renamed finds a free "name (n).ext" sibling. Caller holds st.mu.
func (st *Store) renamed(p string) string {
	dir, base := path.Split(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s%s (%d)%s", dir, stem, i, ext)
		if !st.exists(candidate) {
			return candidate
		}
	}
}
