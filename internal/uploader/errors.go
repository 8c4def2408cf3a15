package uploader

import (
	"errors"

	"github.com/openmined/treeup/internal/remote"
)

var (
	// ErrNotFound is returned when a source path vanished before it could be opened.
	ErrNotFound = errors.New("uploader: source not found")
	// ErrDisallowedName is returned for files whose name the remote refuses.
	// Deny-listed names fail with it before any remote call is made.
	ErrDisallowedName = remote.ErrDisallowedName
	// ErrRemoteRejected wraps every other failed remote call.
	ErrRemoteRejected = remote.ErrRejected
	// ErrIO is returned when the local file cannot be read.
	ErrIO = errors.New("uploader: local i/o error")
)
