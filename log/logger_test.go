package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "wotc-test.log")

	logger := Logger(logrus.New(), outputFile, "worker", "test")
	logger.Info("submission queued")

	contents, err := os.ReadFile(outputFile)
	assert.Nil(t, err)
	assert.Contains(t, string(contents), "submission queued")
	assert.Contains(t, string(contents), "application=worker")
}

func TestLoggerFallsBackToStderr(t *testing.T) {
	logger := Logger(logrus.New(), "", "orchestrator", "test")
	assert.NotNil(t, logger)
}
