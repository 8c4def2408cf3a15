package remote

import "errors"

var (
	// ErrDisallowedName is returned when the remote refuses a reserved file name.
	ErrDisallowedName = errors.New("remote: disallowed name")
	// ErrRejected is returned for every other failed remote call
	// (quota, auth, conflict, invalid session, transport).
	ErrRejected = errors.New("remote: rejected")
)
