package devserver

import "time"

const (
	HeaderAPIArg = "Dropbox-API-Arg"
	timeFormat   = "2006-01-02T15:04:05Z"
)

type CommitArg struct {
	Path           string `json:"path"`
	Mode           string `json:"mode"`
	Autorename     bool   `json:"autorename"`
	ClientModified string `json:"client_modified"`
	Mute           bool   `json:"mute"`
}

type CursorArg struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}

type StartArg struct {
	Close bool `json:"close"`
}

type AppendArg struct {
	Cursor CursorArg `json:"cursor"`
	Close  bool      `json:"close"`
}

type FinishArg struct {
	Cursor CursorArg `json:"cursor"`
	Commit CommitArg `json:"commit"`
}

type StartResult struct {
	SessionID string `json:"session_id"`
}

type FileMetadata struct {
	Name           string `json:"name"`
	ID             string `json:"id"`
	ClientModified string `json:"client_modified"`
	ServerModified string `json:"server_modified"`
	Rev            string `json:"rev"`
	Size           int64  `json:"size"`
	PathLower      string `json:"path_lower"`
	PathDisplay    string `json:"path_display"`
	ContentHash    string `json:"content_hash"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
