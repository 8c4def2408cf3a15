package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/treeup/internal/utils"
	"github.com/openmined/treeup/internal/version"
	"github.com/spf13/cobra"
)

var logLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "treeup [source_root] [dest_root] [relative_path] [log_file]",
	Short: "Upload a directory tree in chunks",
	Long: `Upload a directory tree in chunks.

Every file under source_root/relative_path is uploaded to dest_root/relative_path,
and a line is appended to log_file once the remote has committed it.`,
	Version: version.Detailed(),
	Args:    cobra.MaximumNArgs(4),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logLevel.Set(slog.LevelDebug)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := ensureToken(cfg); err != nil {
			return err
		}

		// all good now, errors past this point are not usage errors
		cmd.SilenceUsage = true

		summary, err := run(cmd.Context(), cfg)
		if summary != nil {
			printSummary(cmd.OutOrStdout(), cfg, summary)
		}
		return err
	},
}

func init() {
	addConfigFlags(rootCmd)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging on the console")
	rootCmd.PersistentFlags().String("run-log", DefaultRunLogPath, "Debug log file for this run")
}

func main() {
	logFile, _ := rootCmd.PersistentFlags().GetString("run-log")
	if v, ok := lookupFlag(os.Args[1:], "run-log"); ok {
		logFile = v
	}

	closer, err := setupLogging(logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		closer.Close()
		os.Exit(1)
	}
}

// setupLogging logs to the console and, at debug level, to logFile.
func setupLogging(logFile string) (io.Closer, error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, err
	}

	// Create new log file for this run
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	logLevel.Set(slog.LevelInfo)
	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return file, nil
}

// lookupFlag finds --name=value or --name value before cobra parses the arguments.
// Logging has to be up before that.
func lookupFlag(args []string, name string) (string, bool) {
	long := "--" + name
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, long+"="); ok {
			return v, true
		}
		if arg == long && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}
