package dbxsdk

import (
	"time"

	"github.com/openmined/treeup/internal/remote"
)

const (
	HeaderAPIArg = "Dropbox-API-Arg"

	v2Upload        = "/2/files/upload"
	v2SessionStart  = "/2/files/upload_session/start"
	v2SessionAppend = "/2/files/upload_session/append_v2"
	v2SessionFinish = "/2/files/upload_session/finish"

	// timestamps on the wire, always UTC with second precision
	timeFormat = "2006-01-02T15:04:05Z"
)

type commitArg struct {
	Path           string `json:"path"`
	Mode           string `json:"mode"`
	Autorename     bool   `json:"autorename"`
	ClientModified string `json:"client_modified,omitempty"`
	Mute           bool   `json:"mute"`
}

type cursorArg struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}

type startArg struct {
	Close bool `json:"close"`
}

type appendArg struct {
	Cursor cursorArg `json:"cursor"`
	Close  bool      `json:"close"`
}

type finishArg struct {
	Cursor cursorArg `json:"cursor"`
	Commit commitArg `json:"commit"`
}

type startResult struct {
	SessionID string `json:"session_id"`
}

type fileMetadata struct {
	Name           string `json:"name"`
	ID             string `json:"id"`
	ClientModified string `json:"client_modified"`
	ServerModified string `json:"server_modified"`
	Rev            string `json:"rev"`
	Size           int64  `json:"size"`
	PathDisplay    string `json:"path_display"`
	ContentHash    string `json:"content_hash"`
}

func newCommitArg(commit *remote.CommitInfo) commitArg {
	arg := commitArg{
		Path: commit.Path,
		Mode: string(commit.Mode),
	}
	if arg.Mode == "" {
		arg.Mode = string(remote.ModeAdd)
	}
	if !commit.ClientModified.IsZero() {
		arg.ClientModified = commit.ClientModified.UTC().Format(timeFormat)
	}
	return arg
}

func newCursorArg(cursor *remote.Cursor) cursorArg {
	return cursorArg{SessionID: cursor.SessionID, Offset: cursor.Offset}
}

func (m *fileMetadata) toRemote() *remote.Metadata {
	return &remote.Metadata{
		ID:             m.ID,
		Name:           m.Name,
		PathDisplay:    m.PathDisplay,
		Size:           m.Size,
		ContentHash:    m.ContentHash,
		Rev:            m.Rev,
		ClientModified: parseTime(m.ClientModified),
		ServerModified: parseTime(m.ServerModified),
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
