package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openmined/treeup/internal/dbxsdk"
	"github.com/openmined/treeup/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execVersion(t *testing.T, args ...string) string {
	t.Helper()
	cmd := &cobra.Command{Use: "treeup"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"version"}, args...))

	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersionCommand_ShowsUploadDefaults(t *testing.T) {
	out := execVersion(t)
	lines := strings.Split(out, "\n")

	assert.Equal(t, version.Detailed(), lines[0])
	assert.Contains(t, out, "User agent: "+version.UserAgent())
	assert.Contains(t, out, dbxsdk.DefaultBaseURL)
	assert.Contains(t, out, "150 MiB, at least 5.0 MiB on s3")
	assert.Contains(t, out, "Pause:      500ms")
}

func TestVersionCommand_Short(t *testing.T) {
	assert.Equal(t, version.Short(), strings.TrimSpace(execVersion(t, "--short")))
}
