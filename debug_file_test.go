//nolint:paralleltest // Tests modify package-level logging state, cannot run in parallel
package ucx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestSessionLog opens a session log in a temporary directory and
// closes it when the test ends.
func openTestSessionLog(t *testing.T) string {
	t.Helper()
	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseSessionLog() })
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path) //nolint:gosec // path comes from InitSessionLog
	require.NoError(t, err)
	return string(content)
}

func TestInitSessionLog_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseSessionLog() })

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `^ucx_\d{8}_\d{6}_\d+\.log$`, filepath.Base(path))
	assert.Equal(t, path, SessionLogPath())
}

func TestInitSessionLog_EnvDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(LogDirEnv, dir)

	path, err := InitSessionLog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseSessionLog() })

	assert.Equal(t, dir, filepath.Dir(path))
}

func TestInitSessionLog_BadDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err := InitSessionLog(filepath.Join(file, "logs"))
	require.Error(t, err)
	assert.Empty(t, SessionLogPath())
}

func TestSessionLog_HeaderAnnotationsAndFooter(t *testing.T) {
	path := openTestSessionLog(t)

	AnnotateSessionLog("transport", "uart")
	Debugf("TX AT")
	Debugf("RX OK")
	require.NoError(t, CloseSessionLog())

	content := readLog(t, path)
	assert.Contains(t, content, "# u-connectXpress session log\n")
	assert.Contains(t, content, "# started ")
	assert.Contains(t, content, "# pid ")
	assert.Contains(t, content, "# transport: uart\n")
	assert.Regexp(t, `# ended after \S+, 2 entries\n$`, content)
	assert.Empty(t, SessionLogPath())
}

func TestSessionLog_ReopenClosesPrevious(t *testing.T) {
	first := openTestSessionLog(t)
	Debugf("first")

	second := openTestSessionLog(t)
	assert.NotEqual(t, first, second)
	Debugf("second")
	require.NoError(t, CloseSessionLog())

	assert.Contains(t, readLog(t, first), "# ended after")
	assert.NotContains(t, readLog(t, first), "second")
	assert.Contains(t, readLog(t, second), "DEBUG second")
}

func TestCloseSessionLog_NothingOpen(t *testing.T) {
	require.NoError(t, CloseSessionLog())
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, SessionLogPath())

	assert.NotPanics(t, func() { AnnotateSessionLog("port", "/dev/ttyUSB0") })
}
