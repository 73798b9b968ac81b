package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver_PrintfAndBanner(t *testing.T) {
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})

	observer := NewObserver(logger)
	observer.Printf("resolved %d addresses", 2)
	observer.Banner("runtime-install")

	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "resolved 2 addresses")
	assert.Contains(t, lines[1], "========== runtime-install ==========")
}

func TestNewTeeLogger_WritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "k3sinit.log")

	logger, closeLog, err := NewTeeLogger(logPath)
	require.NoError(t, err)

	logger.Info("bootstrap started")
	require.NoError(t, closeLog())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "bootstrap started")
}

func TestNewTeeLogger_AppendsAcrossBoots(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "k3sinit.log")

	logger, closeLog, err := NewTeeLogger(logPath)
	require.NoError(t, err)
	logger.Info("first boot")
	require.NoError(t, closeLog())

	logger, closeLog, err = NewTeeLogger(logPath)
	require.NoError(t, err)
	logger.Info("second boot")
	require.NoError(t, closeLog())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "first boot")
	assert.Contains(t, string(content), "second boot")
}

func TestNewTeeLogger_UnwritablePath(t *testing.T) {
	_, _, err := NewTeeLogger(filepath.Join(t.TempDir(), "missing", "k3sinit.log"))
	assert.Error(t, err)
}
