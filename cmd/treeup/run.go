package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/openmined/treeup/internal/blob"
	"github.com/openmined/treeup/internal/dbxsdk"
	"github.com/openmined/treeup/internal/remote"
	"github.com/openmined/treeup/internal/uploader"
	"github.com/openmined/treeup/internal/uploadlog"
	"github.com/openmined/treeup/internal/utils"
	"github.com/openmined/treeup/internal/walker"
)

// ensureToken prompts for the access token when nothing else provided one.
func ensureToken(cfg *Config) error {
	if cfg.Backend != BackendDropbox || cfg.AccessToken != "" {
		return nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return dbxsdk.ErrNoAccessToken
	}

	token, err := promptToken()
	if err != nil {
		return err
	}
	cfg.AccessToken = token
	return nil
}

func newStorage(ctx context.Context, cfg *Config) (remote.Storage, error) {
	switch cfg.Backend {
	case BackendS3:
		return blob.NewS3StorageWithConfig(ctx, &cfg.S3)
	default:
		return dbxsdk.New(cfg.DropboxConfig())
	}
}

// run uploads the configured tree. The summary is returned even when the walk stopped early.
func run(ctx context.Context, cfg *Config) (*walker.Summary, error) {
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return runWithStorage(ctx, cfg, storage)
}

func runWithStorage(ctx context.Context, cfg *Config, storage remote.Storage) (summary *walker.Summary, err error) {
	logWriter, err := uploadlog.Open(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, logWriter.Close())
	}()

	recorders := []walker.Recorder{logWriter}
	if cfg.JournalPath != "" {
		journal, err := uploadlog.OpenJournal(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := journal.Close(); cerr != nil {
				slog.Warn("journal close", "error", cerr)
			}
		}()
		recorders = append(recorders, journal)
	}

	ctrl := uploader.NewController(storage,
		uploader.WithChunkSize(cfg.ChunkSize),
		uploader.WithPause(cfg.Pause),
		uploader.WithMode(cfg.Mode),
	)

	w := walker.New(ctrl,
		walker.WithIgnore(cfg.Ignore...),
		walker.WithInclude(cfg.Include...),
		walker.WithExclude(cfg.localStateFiles()...),
		walker.WithRecorders(recorders...),
	)

	src := cfg.SourcePath()
	dest := utils.RemotePath(cfg.DestRoot, cfg.RelativePath)
	slog.Info("upload start",
		"source", src,
		"dest", dest,
		"backend", cfg.Backend,
		"chunkSize", humanize.IBytes(uint64(ctrl.ChunkSize())),
		"mode", cfg.Mode,
		"log", cfg.LogFile,
	)

	return w.Walk(ctx, src, dest)
}

func printSummary(out io.Writer, cfg *Config, s *walker.Summary) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s files (%s)\n", green.Render(label("Uploaded")), humanize.Comma(int64(s.Uploaded)), humanize.IBytes(uint64(s.Bytes)))
	if s.Skipped > 0 {
		fmt.Fprintf(out, "%s %s files\n", gray.Render(label("Skipped")), humanize.Comma(int64(s.Skipped)))
	}
	if s.Failed > 0 {
		fmt.Fprintf(out, "%s %s files\n", red.Render(label("Failed")), humanize.Comma(int64(s.Failed)))
		for _, p := range s.FailedPaths {
			fmt.Fprintf(out, "  %s\n", gray.Render(p))
		}
	}
	fmt.Fprintf(out, "%s %s\n", cyan.Render(label("Log")), strings.TrimSpace(cfg.LogFile))
}
