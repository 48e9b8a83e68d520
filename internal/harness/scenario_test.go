package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/filters.yaml")
	require.NoError(t, err)

	assert.Equal(t, "filters", s.Name)
	assert.Equal(t, filepath.Join("..", "catalog", "testdata", "extensions.yaml"), s.Catalog, "catalog resolved against the scenario file")
	assert.Equal(t, map[string]any{"me": "urasandesu"}, s.Variables)
	require.NotEmpty(t, s.Steps)

	first := s.Steps[0]
	assert.Equal(t, "author_equality", first.Name)
	assert.Equal(t, "$gall.Author -eq 'urasandesu'", first.Where)
	assert.Equal(t, []string{"Prig", "Gall"}, first.Expect.Results)
	assert.Equal(t, []any{"urasandesu"}, first.Expect.Params)
}

func TestLoadScenario_Paging(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/sorting.yaml")
	require.NoError(t, err)

	var paged *Step
	for i := range s.Steps {
		if s.Steps[i].Name == "descending_with_paging" {
			paged = &s.Steps[i]
		}
	}
	require.NotNil(t, paged)
	require.NotNil(t, paged.Skip)
	require.NotNil(t, paged.Take)
	assert.Equal(t, 1, *paged.Skip)
	assert.Equal(t, 2, *paged.Take)
}

func TestLoadScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"errors", "filters", "snapshot", "sorting"}, names)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: y\nstep: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: y\nsteps: [{name: a}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\nsteps: [{name: a}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			content: "name: x\ndescription: y\nsteps: []\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unnamed step",
			content: "name: x\ndescription: y\nsteps: [{where: '$gall.Installed'}]\n",
			wantErr: "steps[0]: name is required",
		},
		{
			name:    "duplicate step",
			content: "name: x\ndescription: y\nsteps: [{name: a}, {name: a}]\n",
			wantErr: `duplicate name "a"`,
		},
		{
			name:    "unknown error class",
			content: "name: x\ndescription: y\nsteps: [{name: a, expect: {error: boom}}]\n",
			wantErr: `unknown error class "boom"`,
		},
		{
			name:    "negative count",
			content: "name: x\ndescription: y\nsteps: [{name: a, expect: {count: -1}}]\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "missing catalog",
			content: "name: x\ndescription: y\ncatalog: nowhere.yaml\nsteps: [{name: a}]\n",
			wantErr: "catalog file not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
