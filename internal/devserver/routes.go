package devserver

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

func setupRoutes(config *Config, store *Store) (*gin.Engine, error) {
	r := gin.New()

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())

	if config.RateLimit != "" {
		limit, err := RateLimiter(config.RateLimit)
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	r.GET("/healthz", HealthHandler)

	uploadH := &uploadHandler{store: store, maxChunkSize: config.MaxChunkSize}

	files := r.Group("/2/files")
	files.Use(BearerAuth(config.Token))
	// only the json responses are compressed, request bodies are raw file chunks
	files.Use(gzip.Gzip(gzip.BestSpeed))
	{
		files.POST("/upload", uploadH.Upload)
		files.POST("/upload_session/start", uploadH.SessionStart)
		files.POST("/upload_session/append_v2", uploadH.SessionAppend)
		files.POST("/upload_session/finish", uploadH.SessionFinish)
	}

	return r, nil
}
