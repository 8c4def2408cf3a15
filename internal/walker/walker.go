package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/treeup/internal/uploader"
	gitignore "github.com/sabhiram/go-gitignore"
)

// FileUploader uploads a single file.
type FileUploader interface {
	Upload(ctx context.Context, target *uploader.UploadTarget) (*uploader.Result, error)
}

// Recorder receives every completed upload.
type Recorder interface {
	Record(res *uploader.Result) error
}

// Summary counts what happened during a walk.
type Summary struct {
	Uploaded    int
	Skipped     int
	Failed      int
	Bytes       int64
	FailedPaths []string
}

type Option func(*Walker)

// WithIgnore skips every path matching one of the gitignore-style patterns.
// Patterns are matched against the slash-separated path relative to the source root.
func WithIgnore(patterns ...string) Option {
	return func(w *Walker) {
		if len(patterns) > 0 {
			w.ignore = gitignore.CompileIgnoreLines(patterns...)
		}
	}
}

// WithInclude limits uploads to files whose relative path matches one of the globs.
func WithInclude(globs ...string) Option {
	return func(w *Walker) {
		w.include = append(w.include, globs...)
	}
}

// WithExclude skips the given local files, e.g. the upload log when it lives inside the tree.
func WithExclude(paths ...string) Option {
	return func(w *Walker) {
		for _, p := range paths {
			if abs, err := filepath.Abs(p); err == nil {
				w.exclude[abs] = struct{}{}
			}
		}
	}
}

// WithRecorders adds sinks for completed uploads.
func WithRecorders(recorders ...Recorder) Option {
	return func(w *Walker) {
		w.recorders = append(w.recorders, recorders...)
	}
}

// Walker mirrors a local directory tree onto a remote destination prefix.
type Walker struct {
	uploader  FileUploader
	recorders []Recorder
	ignore    *gitignore.GitIgnore
	include   []string
	exclude   map[string]struct{}
}

func New(up FileUploader, opts ...Option) *Walker {
	w := &Walker{uploader: up, exclude: make(map[string]struct{})}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type entry struct {
	src  string
	dest string
	rel  string
}

// Walk uploads everything under srcRoot to destRoot, one file at a time.
// A missing root fails the walk. Failures on individual files are counted in the
// summary and the walk carries on. Only cancellation stops it early.
func (w *Walker) Walk(ctx context.Context, srcRoot, destRoot string) (*Summary, error) {
	summary := &Summary{}

	if _, err := os.Stat(srcRoot); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Error("source root does not exist", "path", srcRoot)
			return summary, fmt.Errorf("%w: %s", uploader.ErrNotFound, srcRoot)
		}
		return summary, fmt.Errorf("%w: stat %s: %w", uploader.ErrIO, srcRoot, err)
	}

	// directories by resolved path, so a symlink back to an ancestor is walked once
	visited := make(map[string]struct{})
	stack := []entry{{src: srcRoot, dest: destRoot}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Stat(cur.src)
		if err != nil {
			slog.Debug("skip unreadable entry", "path", cur.src, "error", err)
			continue
		}

		switch {
		case info.IsDir():
			resolved, err := filepath.EvalSymlinks(cur.src)
			if err != nil {
				slog.Debug("skip unresolvable directory", "path", cur.src, "error", err)
				continue
			}
			if _, seen := visited[resolved]; seen {
				slog.Debug("skip visited directory", "path", cur.src, "target", resolved)
				continue
			}
			visited[resolved] = struct{}{}

			children, err := w.children(cur)
			if err != nil {
				slog.Warn("skip unreadable directory", "path", cur.src, "error", err)
				continue
			}
			stack = append(stack, children...)

		case info.Mode().IsRegular():
			if w.excluded(cur.src) {
				slog.Debug("skip excluded", "path", cur.src)
				continue
			}
			if !w.included(cur.rel) {
				slog.Debug("skip not included", "path", cur.src)
				summary.Skipped++
				continue
			}
			if err := w.uploadFile(ctx, cur, summary); err != nil {
				return summary, err
			}

		default:
			slog.Debug("skip special file", "path", cur.src, "mode", info.Mode().String())
		}
	}

	return summary, nil
}

// children lists a directory and returns its entries in reverse name order,
// so that popping them off the stack visits them alphabetically.
func (w *Walker) children(dir entry) ([]entry, error) {
	dirEntries, err := os.ReadDir(dir.src)
	if err != nil {
		return nil, err
	}

	children := make([]entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		rel := de.Name()
		if dir.rel != "" {
			rel = dir.rel + "/" + de.Name()
		}
		if w.ignored(rel, de.IsDir()) {
			slog.Debug("skip ignored", "path", rel)
			continue
		}
		children = append(children, entry{
			src:  filepath.Join(dir.src, de.Name()),
			dest: path.Join(dir.dest, de.Name()),
			rel:  rel,
		})
	}

	slices.Reverse(children)
	return children, nil
}

func (w *Walker) uploadFile(ctx context.Context, cur entry, summary *Summary) error {
	res, err := w.upload(ctx, cur)
	if err == nil {
		err = w.record(res)
	}
	if err == nil {
		summary.Uploaded++
		summary.Bytes += res.Offset
		slog.Info("uploaded", "path", cur.src, "dest", cur.dest, "size", res.Offset, "calls", res.Calls)
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, uploader.ErrDisallowedName):
		slog.Info("skip disallowed name", "path", cur.src)
		summary.Skipped++
	default:
		slog.Error("upload failed", "path", cur.src, "dest", cur.dest, "error", err)
		summary.Failed++
		summary.FailedPaths = append(summary.FailedPaths, cur.src)
	}
	return nil
}

func (w *Walker) upload(ctx context.Context, cur entry) (*uploader.Result, error) {
	target, err := uploader.NewUploadTarget(cur.src, cur.dest)
	if err != nil {
		return nil, err
	}
	return w.uploader.Upload(ctx, target)
}

func (w *Walker) record(res *uploader.Result) error {
	for _, rec := range w.recorders {
		if err := rec.Record(res); err != nil {
			return fmt.Errorf("%w: record %s: %w", uploader.ErrIO, res.Target.SourcePath, err)
		}
	}
	return nil
}

func (w *Walker) ignored(rel string, isDir bool) bool {
	if w.ignore == nil {
		return false
	}
	if isDir && w.ignore.MatchesPath(rel+"/") {
		return true
	}
	return w.ignore.MatchesPath(rel)
}

func (w *Walker) excluded(src string) bool {
	if len(w.exclude) == 0 {
		return false
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return false
	}
	_, ok := w.exclude[abs]
	return ok
}

func (w *Walker) included(rel string) bool {
	// the root itself is a file
	if rel == "" || len(w.include) == 0 {
		return true
	}
	for _, glob := range w.include {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}
