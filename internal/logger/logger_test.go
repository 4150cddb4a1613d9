package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitDisabledDiscards(t *testing.T) {
	closer, err := Init(Options{})
	require.NoError(t, err)
	require.NoError(t, closer())
	require.False(t, L.Enabled(t.Context(), slog.LevelError))
}

func TestInitWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := Init(Options{Enabled: true, LogDir: dir, Level: slog.LevelDebug})
	require.NoError(t, err)
	t.Cleanup(func() { L = Discard() })

	L.Info("recovered", "seq", 3)
	require.NoError(t, closer())

	name := filepath.Join(dir, logPrefix+time.Now().Format("2006-01-02")+logSuffix)
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"recovered"`)
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	old := filepath.Join(dir, logPrefix+"2024-01-01"+logSuffix)
	recent := filepath.Join(dir, logPrefix+"2024-02-25"+logSuffix)
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, recent, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	cleanOldLogs(dir, now)

	require.NoFileExists(t, old)
	require.FileExists(t, recent)
	require.FileExists(t, other)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	require.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestOr(t *testing.T) {
	l := slog.New(slog.NewTextHandler(os.Stderr, nil))
	require.Same(t, l, Or(l))
	require.Same(t, L, Or(nil))
}
