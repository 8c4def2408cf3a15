package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/openmined/treeup/internal/blob"
	"github.com/openmined/treeup/internal/dbxsdk"
	"github.com/openmined/treeup/internal/remote"
	"github.com/openmined/treeup/internal/uploader"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	BackendDropbox = "dropbox"
	BackendS3      = "s3"

	envPrefix      = "TREEUP"
	configFileName = "config"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".treeup", "config.json")
	DefaultRunLogPath = filepath.Join(home, ".treeup", "logs", "treeup.log")
)

var (
	ErrInvalidBackend   = errors.New("config: backend must be dropbox or s3")
	ErrInvalidMode      = errors.New("config: mode must be add or overwrite")
	ErrInvalidChunkSize = errors.New("config: invalid chunk size")
)

// positional arguments, in order
var positional = []struct {
	key string
	def string
}{
	{"source_root", "."},
	{"dest_root", "/treeup"},
	{"relative_path", ""},
	{"log_file", "upload_log.csv"},
}

type Config struct {
	Path         string
	SourceRoot   string
	DestRoot     string
	RelativePath string
	LogFile      string
	JournalPath  string
	Backend      string
	ServerURL    string
	AccessToken  string
	ChunkSize    int
	Pause        time.Duration
	Mode         remote.CommitMode
	Ignore       []string
	Include      []string
	S3           blob.S3BlobConfig
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}

	switch c.Backend {
	case BackendDropbox:
		if c.ChunkSize > uploader.DefaultChunkSize {
			return fmt.Errorf("%w: at most %s", ErrInvalidChunkSize, humanize.IBytes(uploader.DefaultChunkSize))
		}
	case BackendS3:
		if err := blob.ValidateChunkSize(c.ChunkSize); err != nil {
			return fmt.Errorf("%w: at least %s", err, humanize.IBytes(blob.MinPartSize))
		}
		return c.S3.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}
	return nil
}

// SourcePath is the local path the walk starts from.
func (c *Config) SourcePath() string {
	return filepath.Join(c.SourceRoot, filepath.FromSlash(c.RelativePath))
}

// localStateFiles lists the files a run writes itself. The log defaults to the
// working directory, which is also the default source root.
func (c *Config) localStateFiles() []string {
	files := []string{c.LogFile, c.LogFile + ".lock"}
	if c.JournalPath != "" {
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			files = append(files, c.JournalPath+suffix)
		}
	}
	return files
}

func (c *Config) DropboxConfig() *dbxsdk.Config {
	return &dbxsdk.Config{
		BaseURL:     c.ServerURL,
		AccessToken: c.AccessToken,
	}
}

func addConfigFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringP("backend", "b", BackendDropbox, "Remote backend (dropbox|s3)")
	flags.StringP("server", "s", dbxsdk.DefaultBaseURL, "Upload API base url")
	flags.StringP("token", "t", "", "Access token for the upload API")
	flags.String("chunk-size", "150MiB", "Bytes sent per request")
	flags.Duration("pause", uploader.DefaultPause, "Pause between chunk requests")
	flags.String("mode", string(remote.ModeAdd), "What to do when the destination exists (add|overwrite)")
	flags.String("journal", "", "Also record uploads in this SQLite database")
	flags.StringSlice("ignore", nil, "Gitignore style patterns to skip")
	flags.StringSlice("include", nil, "Only upload files matching these globs")
	flags.String("s3-bucket", "", "S3 bucket")
	flags.String("s3-region", "", "S3 region")
	flags.String("s3-endpoint", "", "S3 compatible endpoint")
	flags.String("s3-prefix", "", "Key prefix inside the bucket")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.Bool("s3-accelerate", false, "Use the S3 transfer acceleration endpoint")
	cmd.PersistentFlags().StringP("config", "c", DefaultConfigPath, "treeup config file")
}

func loadConfig(cmd *cobra.Command, args []string) (*Config, error) {
	// a .env next to the tree is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// config path
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".treeup"))
		v.AddConfigPath(filepath.Join(home, ".config", "treeup"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	flags := cmd.Flags()
	v.BindPFlag("backend", flags.Lookup("backend"))
	v.BindPFlag("server_url", flags.Lookup("server"))
	v.BindPFlag("access_token", flags.Lookup("token"))
	v.BindPFlag("chunk_size", flags.Lookup("chunk-size"))
	v.BindPFlag("pause", flags.Lookup("pause"))
	v.BindPFlag("mode", flags.Lookup("mode"))
	v.BindPFlag("journal", flags.Lookup("journal"))
	v.BindPFlag("ignore", flags.Lookup("ignore"))
	v.BindPFlag("include", flags.Lookup("include"))
	v.BindPFlag("s3_bucket", flags.Lookup("s3-bucket"))
	v.BindPFlag("s3_region", flags.Lookup("s3-region"))
	v.BindPFlag("s3_endpoint", flags.Lookup("s3-endpoint"))
	v.BindPFlag("s3_prefix", flags.Lookup("s3-prefix"))
	v.BindPFlag("s3_access_key", flags.Lookup("s3-access-key"))
	v.BindPFlag("s3_secret_key", flags.Lookup("s3-secret-key"))
	v.BindPFlag("s3_accelerate", flags.Lookup("s3-accelerate"))

	// Set up environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	for i, p := range positional {
		v.SetDefault(p.key, p.def)
		if i < len(args) {
			v.Set(p.key, args[i])
		}
	}

	chunkSize, err := humanize.ParseBytes(v.GetString("chunk_size"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChunkSize, err)
	}

	return &Config{
		Path:         v.ConfigFileUsed(),
		SourceRoot:   v.GetString("source_root"),
		DestRoot:     v.GetString("dest_root"),
		RelativePath: v.GetString("relative_path"),
		LogFile:      v.GetString("log_file"),
		JournalPath:  v.GetString("journal"),
		Backend:      strings.ToLower(v.GetString("backend")),
		ServerURL:    v.GetString("server_url"),
		AccessToken:  v.GetString("access_token"),
		ChunkSize:    int(chunkSize),
		Pause:        v.GetDuration("pause"),
		Mode:         remote.CommitMode(strings.ToLower(v.GetString("mode"))),
		Ignore:       v.GetStringSlice("ignore"),
		Include:      v.GetStringSlice("include"),
		S3: blob.S3BlobConfig{
			BucketName: v.GetString("s3_bucket"),
			Region:     v.GetString("s3_region"),
			Endpoint:   v.GetString("s3_endpoint"),
			Prefix:     v.GetString("s3_prefix"),
			AccessKey:  v.GetString("s3_access_key"),
			SecretKey:  v.GetString("s3_secret_key"),

			UseAccelerate: v.GetBool("s3_accelerate"),
		},
	}, nil
}
