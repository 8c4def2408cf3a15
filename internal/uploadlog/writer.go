// Package uploadlog records completed uploads, one line per file.
package uploadlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/openmined/treeup/internal/uploader"
	"github.com/openmined/treeup/internal/utils"
)

var ErrLogLocked = errors.New("upload log locked by another process")

// Writer appends CSV records and flushes after each one.
type Writer struct {
	csv    *csv.Writer
	closer io.Closer
	lock   *flock.Flock
}

// NewWriter writes records to w. The caller keeps ownership of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// Open opens path for appending, creating it and its parent directory when needed.
// A sibling ".lock" file keeps a second writer from appending at the same time.
func Open(path string) (*Writer, error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock upload log: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLogLocked, path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open upload log: %w", err)
	}

	return &Writer{
		csv:    csv.NewWriter(file),
		closer: file,
		lock:   lock,
	}, nil
}

// Record implements walker.Recorder.
func (w *Writer) Record(res *uploader.Result) error {
	return w.Write(NewRecord(res))
}

// Write appends rec and flushes it.
func (w *Writer) Write(rec *Record) error {
	if err := w.csv.Write(rec.Fields()); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes pending output, closes the file and releases the lock.
func (w *Writer) Close() error {
	w.csv.Flush()
	err := w.csv.Error()

	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	if w.lock != nil {
		err = errors.Join(err, w.lock.Unlock(), os.Remove(w.lock.Path()))
	}
	return err
}
