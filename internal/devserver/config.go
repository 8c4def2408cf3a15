package devserver

import (
	"errors"
	"time"
)

const (
	DefaultAddr         = "127.0.0.1:8180"
	DefaultSessionTTL   = 48 * time.Hour
	DefaultMaxSessions  = 1024
	DefaultMaxChunkSize = 150 * 1024 * 1024
	DefaultRateLimit    = "100-S"
)

var (
	ErrNoDataDir = errors.New("devserver: data dir missing")
	ErrNoToken   = errors.New("devserver: access token missing")
)

type Config struct {
	Addr         string        // listen address
	DataDir      string        // committed files and session temp files live here
	Token        string        // bearer token clients must present
	SessionTTL   time.Duration // sessions idle for longer are discarded
	MaxSessions  int           // open sessions kept before the oldest is evicted
	MaxChunkSize int64         // largest accepted request body
	RateLimit    string        // ulule formatted rate, e.g. "100-S". empty disables the limiter
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if c.Token == "" {
		return ErrNoToken
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
}
