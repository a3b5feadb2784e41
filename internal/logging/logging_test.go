package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestNewFallsBackToStderrWithoutFilePath(t *testing.T) {
	l := New(Config{Level: "debug"})
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewRoutesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Level: "info", FilePath: dir + "/nemb/test.log"})
	l.Info("hello")
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewConsoleMode(t *testing.T) {
	l := New(Config{Level: "info", Console: true})
	assert.NotNil(t, l)
}
