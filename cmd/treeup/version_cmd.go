package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/treeup/internal/blob"
	"github.com/openmined/treeup/internal/dbxsdk"
	"github.com/openmined/treeup/internal/uploader"
	"github.com/openmined/treeup/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and upload defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, version.Short())
				return err
			}

			fmt.Fprintln(out, version.Detailed())
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%s %s\n", label("User agent"), version.UserAgent())
			fmt.Fprintf(out, "%s %s (default, %s), %s\n", label("Backends"), BackendDropbox, dbxsdk.DefaultBaseURL, BackendS3)
			fmt.Fprintf(out, "%s %s, at least %s on s3\n", label("Chunk size"),
				humanize.IBytes(uploader.DefaultChunkSize), humanize.IBytes(blob.MinPartSize))
			_, err := fmt.Fprintf(out, "%s %s\n", label("Pause"), uploader.DefaultPause)
			return err
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version and revision")
	return cmd
}
