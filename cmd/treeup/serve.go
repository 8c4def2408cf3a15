package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/openmined/treeup/internal/devserver"
	"github.com/openmined/treeup/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	cfg := &devserver.Config{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local upload api backed by a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" {
				cfg.Token = os.Getenv("TREEUP_DEVSERVER_TOKEN")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			dataDir, err := utils.ResolvePath(cfg.DataDir)
			if err != nil {
				return err
			}
			cfg.DataDir = dataDir
			cmd.SilenceUsage = true

			gin.SetMode(gin.ReleaseMode)
			srv, err := devserver.New(cfg)
			if err != nil {
				return err
			}
			return srv.Start(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", devserver.DefaultAddr, "Listen address")
	flags.StringVarP(&cfg.DataDir, "data-dir", "d", "", "Directory for uploaded files")
	flags.StringVarP(&cfg.Token, "token", "t", "", "Bearer token clients must send")
	flags.DurationVar(&cfg.SessionTTL, "session-ttl", devserver.DefaultSessionTTL, "Drop sessions idle for longer")
	flags.StringVar(&cfg.RateLimit, "rate-limit", devserver.DefaultRateLimit, "Requests per client, e.g. 100-S. Empty disables")
	return cmd
}
