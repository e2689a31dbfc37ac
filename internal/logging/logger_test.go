package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug", slog.LevelWarn))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, parseLevel("error", slog.LevelWarn))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose", slog.LevelInfo))
}

func TestShortPath(t *testing.T) {
	inside := filepath.Join(moduleRoot, "internal", "usecase", "deploy_proxy.go")
	assert.Equal(t, filepath.Join("internal", "usecase", "deploy_proxy.go"), shortPath(inside))
	assert.Equal(t, "proc.go", shortPath("/usr/local/go/src/runtime/proc.go"))
}
