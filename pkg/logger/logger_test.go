package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := current()
	UseLogger(zap.New(core))
	defer UseLogger(prev)

	WarnCF("commands", "Skipped command", map[string]interface{}{
		"key":   "secrets.token",
		"error": errors.New("invalid key"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "commands", ctx["component"])
	assert.Equal(t, "secrets.token", ctx["key"])
	assert.Equal(t, "invalid key", ctx["error"])
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestInitWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studiogm.log")
	require.NoError(t, Init(Options{Level: INFO, FilePath: path}))
	defer func() { _ = Init(Options{Level: INFO}) }()

	DebugCF("gm", "hidden at info level", nil)
	InfoCF("gm", "Turn committed", map[string]interface{}{"changes": 3})
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"Turn committed"`)
	assert.Contains(t, out, `"component":"gm"`)
	assert.False(t, strings.Contains(out, "hidden at info level"))
}
