package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runCommand(NewTestCommand(testRootOptions(t, "text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	out, err := runCommand(NewTestCommand(testRootOptions(t, "text")), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runCommand(NewTestCommand(testRootOptions(t, "text")), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := runCommand(NewTestCommand(testRootOptions(t, "json")), harnessScenarios)
	require.NoError(t, err)

	var result TestResult
	decodeResponse(t, out, &result)
	require.Equal(t, 6, result.Total)
	assert.Equal(t, 6, result.Passed)
	for _, s := range result.Scenarios {
		assert.Equal(t, "match", s.Golden, s.Name)
	}
}

func TestTestCommandFilter(t *testing.T) {
	out, err := runCommand(NewTestCommand(testRootOptions(t, "text")), harnessScenarios, "--filter", "b_*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ b_answer_reclassifies")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandUpdateAndMismatch(t *testing.T) {
	goldenDir := t.TempDir()
	opts := testRootOptions(t, "text")

	out, err := runCommand(NewTestCommand(opts), harnessScenarios,
		"--filter", "a_*", "--golden-dir", goldenDir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	written, err := os.ReadFile(filepath.Join(goldenDir, "a_missed_call_creates_record.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("../harness/testdata/golden/a_missed_call_creates_record.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	path := filepath.Join(goldenDir, "a_missed_call_creates_record.golden")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	out, err = runCommand(NewTestCommand(opts), harnessScenarios, "--filter", "a_*", "--golden-dir", goldenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ a_missed_call_creates_record")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `
name: wrong_count
now: "2026-03-04T15:00:00-05:00"
steps:
  - rows:
      - {contact: "(555) 123-4567", timestamp: "2:15 PM", type: Missed, index: "7"}
assertions:
  - type: delivery_count
    kind: create
    count: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_count.yaml"), []byte(scenario), 0o644))

	out, err := runCommand(NewTestCommand(testRootOptions(t, "text")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_count")
	assert.Contains(t, out, "1 failed")
}
