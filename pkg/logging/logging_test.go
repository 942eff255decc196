package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)

	ctx := AppendCtx(context.Background(), slog.String("run", "abc"))
	ctx = AppendCtx(ctx, slog.Group("lutgrade", slog.String("git", "NA")))
	log.With("stage", "test").InfoContext(ctx, "hello", "n", 3)
	log.DebugContext(ctx, "dropped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "abc", rec["run"])
	assert.Equal(t, "test", rec["stage"])
	assert.Equal(t, float64(3), rec["n"])
	assert.Equal(t, map[string]any{"git": "NA"}, rec["lutgrade"])
}

func TestAppendCtx_DoesNotShareParent(t *testing.T) {
	parent := AppendCtx(context.Background(), slog.Int("a", 1))
	left := AppendCtx(parent, slog.Int("b", 2))
	right := AppendCtx(parent, slog.Int("c", 3))

	assert.Len(t, parent.Value(ctxKey{}), 1)
	assert.Equal(t, []slog.Attr{slog.Int("a", 1), slog.Int("b", 2)}, left.Value(ctxKey{}))
	assert.Equal(t, []slog.Attr{slog.Int("a", 1), slog.Int("c", 3)}, right.Value(ctxKey{}))
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	Logger(&buf, false, slog.LevelDebug).WithGroup("g").Debug("msg", "k", "v")
	assert.Contains(t, buf.String(), "g.k=v")
}

func TestOutput(t *testing.T) {
	var buf bytes.Buffer
	assert.Same(t, &buf, Output(&buf, "", 1, 1))

	path := filepath.Join(t.TempDir(), "lutgrade.log")
	w := Output(&buf, path, 1, 1)
	_, err := w.Write([]byte("line\n"))
	require.NoError(t, err)
	assert.Equal(t, "line\n", buf.String())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(raw))
}
