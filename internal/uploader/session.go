package uploader

import (
	"github.com/openmined/treeup/internal/remote"
)

// Phase is the state of a single file's upload session.
type Phase int

const (
	// NoSession: nothing has been sent yet.
	NoSession Phase = iota
	// SessionOpen: a remote session exists and accepts appends.
	SessionOpen
	// Done: the file is committed and Metadata is set.
	Done
)

func (p Phase) String() string {
	switch p {
	case NoSession:
		return "NoSession"
	case SessionOpen:
		return "SessionOpen"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Session tracks one file's progress through the upload protocol.
// SessionID is only meaningful in SessionOpen, Metadata only in Done.
type Session struct {
	Phase     Phase
	SessionID string
	Offset    int64
	Metadata  *remote.Metadata
}

func (s *Session) cursor() *remote.Cursor {
	return &remote.Cursor{
		SessionID: s.SessionID,
		Offset:    s.Offset,
	}
}

func (s *Session) open(sessionID string) {
	s.Phase = SessionOpen
	s.SessionID = sessionID
}

func (s *Session) finish(meta *remote.Metadata) {
	s.Phase = Done
	s.SessionID = ""
	s.Metadata = meta
}
