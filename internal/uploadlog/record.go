package uploadlog

import (
	"strconv"
	"time"

	"github.com/openmined/treeup/internal/uploader"
)

// Header names the columns of a log line, in order.
var Header = []string{
	"source_path",
	"client_modified",
	"destination_path",
	"id",
	"server_modified",
	"rev",
	"size",
	"content_hash",
}

// Record is one completed upload.
type Record struct {
	SourcePath      string
	ClientModified  time.Time
	DestinationPath string
	ID              string
	ServerModified  time.Time
	Rev             string
	Size            int64
	ContentHash     string
}

// NewRecord builds a Record from an upload result.
func NewRecord(res *uploader.Result) *Record {
	meta := res.Metadata
	return &Record{
		SourcePath:      res.Target.SourcePath,
		ClientModified:  res.Target.ClientModified,
		DestinationPath: res.Target.DestinationPath,
		ID:              meta.ID,
		ServerModified:  meta.ServerModified,
		Rev:             meta.Rev,
		Size:            meta.Size,
		ContentHash:     meta.ContentHash,
	}
}

// Fields returns the record in Header order.
func (r *Record) Fields() []string {
	return []string{
		r.SourcePath,
		formatTime(r.ClientModified),
		r.DestinationPath,
		r.ID,
		formatTime(r.ServerModified),
		r.Rev,
		strconv.FormatInt(r.Size, 10),
		r.ContentHash,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
