package commands_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary once for all tests.
	tmpDir, err := os.MkdirTemp("", "ledgersync-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "ledgersync")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/ledgersync")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	os.Exit(m.Run())
}

func runLedgersync(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func TestInit_WritesConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := runLedgersync(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ledgersync.yaml")

	data, err := os.ReadFile(filepath.Join(dir, "ledgersync.yaml"))
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "window_days: 3")
	assert.Contains(t, contents, "settled_date_policy: sync_date")
	assert.Contains(t, contents, "port: 5432")
}

func TestSync_RequiresInput(t *testing.T) {
	out, err := runLedgersync(t, "sync", "--user", "1")
	require.Error(t, err)
	assert.Contains(t, out, "--file or --dir")
}

func TestSync_RequiresUser(t *testing.T) {
	_, err := runLedgersync(t, "sync", "--file", "payloads.jsonl")
	require.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	out, err := runLedgersync(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "commit:")
}
