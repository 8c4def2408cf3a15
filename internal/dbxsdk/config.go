package dbxsdk

import (
	"time"

	"github.com/openmined/treeup/internal/utils"
)

const (
	DefaultBaseURL = "https://content.dropboxapi.com"
	DefaultTimeout = 10 * time.Minute
)

// Config is the configuration for the upload client
type Config struct {
	BaseURL     string        // BaseURL is required
	AccessToken string        // AccessToken is required
	Timeout     time.Duration // Timeout per request, optional
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}

	if err := utils.ValidateURL(c.BaseURL); err != nil {
		return err
	}

	if c.AccessToken == "" {
		return ErrNoAccessToken
	}

	return nil
}
