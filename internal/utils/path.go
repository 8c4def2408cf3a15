package utils

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading "~" and returns a clean absolute path.
func ResolvePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path cannot be empty")
	}

	if strings.HasPrefix(p, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		p = strings.Replace(p, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(absPath), nil
}

// RemotePath joins slash-separated remote path elements into an absolute remote path.
// Local separators in the elements are converted, empty elements are dropped.
func RemotePath(elems ...string) string {
	parts := make([]string, 0, len(elems)+1)
	parts = append(parts, "/")
	for _, e := range elems {
		if e != "" {
			parts = append(parts, filepath.ToSlash(e))
		}
	}
	return path.Join(parts...)
}

func EnsureParent(p string) error {
	return EnsureDir(filepath.Dir(p))
}

func EnsureDir(p string) error {
	if DirExists(p) {
		return nil
	}
	return os.MkdirAll(p, 0o755)
}

func DirExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
