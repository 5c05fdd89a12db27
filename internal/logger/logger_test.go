package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/wsdl/internal/logger"
)

func TestSetOutputLevels(t *testing.T) {
	var buf bytes.Buffer

	logger.SetOutput(&buf, false)
	logger.Debugf("hidden %d", 1)
	logger.Infof("visible %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "visible 2")

	buf.Reset()
	logger.SetOutput(&buf, true)
	logger.Debugf("shown %s", "now")
	assert.Contains(t, buf.String(), "shown now")
}

func TestInitLoggingWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsdl.log")

	require.NoError(t, logger.InitLogging(false, path))
	logger.Warnf("disk is %s", "full")
	logger.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk is full")
}

func TestInitLoggingBadPath(t *testing.T) {
	err := logger.InitLogging(true, filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}
