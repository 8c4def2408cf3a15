package utils

import (
	"fmt"
	"net/url"
)

// ValidateURL checks that s is an absolute http(s) URL.
func ValidateURL(s string) error {
	if s == "" {
		return fmt.Errorf("url cannot be empty")
	}

	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", s)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", s)
	}
	return nil
}
