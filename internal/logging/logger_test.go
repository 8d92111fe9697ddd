package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_WritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	l, err := Open(dir, "abc", started)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "20260102T030405Z-abc.jsonl"), l.Path())

	l.Logger().Info("selected", "story", "A", "bucket", 4)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "selected", entry["msg"])
	assert.Equal(t, "abc", entry["iteration"])
	assert.Equal(t, "A", entry["story"])
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.Empty(t, l.Path())
	l.Logger().Info("ignored")
	assert.NoError(t, l.Close())

	fromEmptyDir, err := Open("", "x", time.Now())
	require.NoError(t, err)
	assert.Empty(t, fromEmptyDir.Path())
}

func TestNilLogIsSafe(t *testing.T) {
	var l *IterationLog
	assert.Empty(t, l.Path())
	assert.NotNil(t, l.Logger())
	assert.NoError(t, l.Close())
}
