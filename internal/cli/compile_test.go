package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCompileCommand(t *testing.T, opts *RootOptions, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestCompile_Predicate(t *testing.T) {
	buf, err := runCompileCommand(t, &RootOptions{Format: "json"}, "$gall.Author -eq 'urasandesu' -and $gall.Ranking -ge (2 + 2)")
	require.NoError(t, err)

	var result CompilationResult
	resp := decodeResponse(t, buf.Bytes(), &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, `gall => ((gall.Author == "urasandesu") AndAlso (gall.Ranking >= 4))`, result.Lambda)
	assert.Contains(t, result.SQL, "WHERE (author = ? AND ranking >= ?)")
	assert.Equal(t, []any{"urasandesu", float64(4)}, result.Params)
	assert.True(t, json.Valid(result.Canonical))
	assert.Contains(t, string(result.Canonical), `"urasandesu"`)
	assert.Len(t, result.Fingerprint, 64)
}

func TestCompile_Selector(t *testing.T) {
	buf, err := runCompileCommand(t, &RootOptions{Format: "json"}, "--selector", "--descending", "$gall.DownloadCount")
	require.NoError(t, err)

	var result CompilationResult
	decodeResponse(t, buf.Bytes(), &result)
	assert.Equal(t, "gall => Convert(gall.DownloadCount, any)", result.Lambda)
	assert.Contains(t, result.SQL, "ORDER BY download_count DESC, id COLLATE BINARY ASC")
	assert.Equal(t, []any{}, result.Params)
}

func TestCompile_Text(t *testing.T) {
	buf, err := runCompileCommand(t, &RootOptions{Format: "text"}, "$gall.Name -in 'Prig', 'Gall'")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "lambda:    gall => ")
	assert.Contains(t, out, "canonical: {")
	assert.Regexp(t, `hash:      [0-9a-f]{64}\n`, out)
	assert.Contains(t, out, "sql:       SELECT ")
	assert.Contains(t, out, "WHERE name IN (?, ?)")
	assert.Contains(t, out, "params:    [Prig Gall]")
}

func TestCompile_UsesConfiguredParameterAndVariables(t *testing.T) {
	opts := &RootOptions{ConfigPath: "../config/testdata/gall.cue", Format: "json"}
	buf, err := runCompileCommand(t, opts, "$ext.Author -eq $me -and $ext.Ranking -ge $minimum")
	require.NoError(t, err)

	var result CompilationResult
	decodeResponse(t, buf.Bytes(), &result)
	assert.Equal(t, `ext => ((ext.Author == "urasandesu") AndAlso (ext.Ranking >= 4.5))`, result.Lambda)
	assert.Equal(t, []any{"urasandesu", 4.5}, result.Params)

	again, err := runCompileCommand(t, opts, "$ext.Author -eq 'urasandesu' -and $ext.Ranking -ge 4.5")
	require.NoError(t, err)
	var literal CompilationResult
	decodeResponse(t, again.Bytes(), &literal)
	assert.Equal(t, result.Fingerprint, literal.Fingerprint, "folded variables and literals compile alike")
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		wantCode string
	}{
		{"syntax", "$$$gall.Author -eq 'urasandesu'", ErrCodeSyntax},
		{"unsupported", "$gall.Name -like 'G*'", "E201"},
		{"type mismatch", "$gall.Name -eq 1", "E202"},
		{"evaluation", "$gall.Ranking -gt (1 / 0)", ErrCodeEvaluation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := runCompileCommand(t, &RootOptions{Format: "json"}, tt.source)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			resp := decodeResponse(t, buf.Bytes(), nil)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestCompile_RequiresOneArgument(t *testing.T) {
	_, err := runCompileCommand(t, &RootOptions{Format: "text"})
	assert.Error(t, err)
}
