package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/testutil"
)

// seededDatabase returns the path of a catalog holding the five fixture
// entries, with IDs testutil.ID(1) to testutil.ID(5) in file order.
func seededDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gall.db")
	cat, err := catalog.Open(path,
		catalog.WithIDGenerator(testutil.NewSequentialIDs()),
		catalog.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	defer cat.Close()

	f, err := os.Open("../catalog/testdata/extensions.yaml")
	require.NoError(t, err)
	defer f.Close()
	_, err = cat.ImportYAML(context.Background(), f)
	require.NoError(t, err)
	return path
}

// decodeResponse unmarshals a JSON CLIResponse and its data into data.
func decodeResponse(t *testing.T, b []byte, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &raw), string(b))
	if data != nil && raw.Data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "gall", cmd.Use)
	assert.Contains(t, cmd.Long, "filter and sort scripts")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"search", "compile", "import", "shell"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	for _, name := range []string{"format", "config", "database"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue, "%s falls back to the config file", name)
	}
}

func TestSearchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	searchCmd, _, err := cmd.Find([]string{"search"})
	require.NoError(t, err)

	for _, name := range []string{"where", "order-by", "order-by-descending", "skip", "take", "sql"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "w", searchCmd.Flags().Lookup("where").Shorthand)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "compile", "$gall.ExtensionIsInstalled"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestRootCommand_ExecutesSubcommand(t *testing.T) {
	db := seededDatabase(t)
	buf := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--database", db, "--format", "json", "search", "--where", "$gall.Priority -eq 3"})
	require.NoError(t, cmd.Execute())

	var result SearchResult
	resp := decodeResponse(t, buf.Bytes(), &result)
	assert.Equal(t, "ok", resp.Status)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, "Productivity Power Tools", result.Entries[0].Name)
}

func TestLoadConfig(t *testing.T) {
	opts := &RootOptions{ConfigPath: "../config/testdata/gall.cue", Database: "other.db", Verbose: true}

	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Database, "flag overrides the file")
	assert.Equal(t, "json", cfg.Format, "file value kept when the flag is empty")
	assert.Equal(t, "ext", cfg.Parameter)
	assert.True(t, cfg.Verbose)

	again, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestLoadConfig_Missing(t *testing.T) {
	opts := &RootOptions{}
	cfg, err := opts.loadConfig()
	require.NoError(t, err, "a missing default file is not an error")
	assert.Equal(t, "gall.db", cfg.Database)

	opts = &RootOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.cue")}
	_, err = opts.loadConfig()
	assert.Error(t, err)
}

func TestConfigErrorIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gall.cue")
	require.NoError(t, os.WriteFile(path, []byte(`culture: "xx-XX"`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{ConfigPath: path, Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"$gall.ExtensionIsInstalled"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, buf.Bytes(), nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}
