package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindrian/internal/config"
)

func TestVersionCmd_JSON(t *testing.T) {
	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())

	var info BuildInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.APIVersion)
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "run", "auth", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "verbose", "quiet"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestAuthLoginStatusLogout(t *testing.T) {
	t.Cleanup(config.Reset)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MINDRIAN_ANTHROPIC_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	run := func(args ...string) string {
		t.Helper()
		root := NewRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(append([]string{"--config", path}, args...))
		require.NoError(t, root.Execute())
		return out.String()
	}

	assert.Contains(t, run("auth", "status"), "Not authenticated")
	assert.Contains(t, run("auth", "login", "--key", "sk-ant-0123456789"), "API key saved")

	config.Reset()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-0123456789", cfg.Anthropic.APIKey)

	config.Reset()
	assert.Contains(t, run("auth", "status"), "sk-a...6789")
	config.Reset()
	assert.Contains(t, run("auth", "logout"), "API key removed")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", maskToken("short"))
	assert.Equal(t, "sk-a...wxyz", maskToken("sk-ant-abcdwxyz"))
}
