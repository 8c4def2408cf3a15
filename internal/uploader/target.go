package uploader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// UploadTarget is one local file and where it goes on the remote.
type UploadTarget struct {
	SourcePath      string
	DestinationPath string
	ClientModified  time.Time
}

// NewUploadTarget stats sourcePath and captures its modification time in UTC,
// truncated to the second precision the remote stores.
func NewUploadTarget(sourcePath, destinationPath string) (*UploadTarget, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sourcePath)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, sourcePath, err)
	}

	return &UploadTarget{
		SourcePath:      sourcePath,
		DestinationPath: destinationPath,
		ClientModified:  info.ModTime().UTC().Truncate(time.Second),
	}, nil
}
