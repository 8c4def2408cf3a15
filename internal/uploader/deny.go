package uploader

import (
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultDenyList holds names the remote refuses to store.
var DefaultDenyList = []string{
	"thumbs.db",
	"desktop.ini",
	".ds_store",
	"icon\r",
}

// DenyList matches file names case-insensitively against a fixed set.
type DenyList struct {
	names mapset.Set[string]
}

func NewDenyList(names ...string) *DenyList {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, name := range names {
		set.Add(strings.ToLower(name))
	}
	return &DenyList{names: set}
}

// Denied reports whether the base name of path is deny-listed.
func (d *DenyList) Denied(path string) bool {
	if d == nil {
		return false
	}
	return d.names.Contains(strings.ToLower(filepath.Base(path)))
}
