package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToRotatedFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir, "debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("ship_code", "VN-001").Info("hello")

	data, err := os.ReadFile(filepath.Join(dir, "ship-notification.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ship_code=VN-001")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(t.TempDir(), "loud")
	assert.Error(t, err)
}
