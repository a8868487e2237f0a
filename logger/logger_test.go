package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogsClearsOldDumps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	require.NoError(t, InitLogs(dir))

	_, err := os.Stat(filepath.Join(dir, "old.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "keep.txt"))
	assert.NoError(t, err)
}

func TestNilDumper(t *testing.T) {
	d, err := NewDumper("")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NotPanics(t, func() { d.Dump(map[string]any{}, nil) })
}

func TestDumperWritesNumberedPairs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	d, err := NewDumper(dir)
	require.NoError(t, err)

	d.Dump(map[string]any{"action": "parse_text"}, map[string]any{"data": map[string]any{}})
	d.Dump(map[string]any{"action": "noop"}, nil)

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	for i := range files {
		files[i] = filepath.Base(files[i])
	}
	assert.ElementsMatch(t, []string{"000001_request.json", "000001_response.json", "000002_request.json"}, files)

	b, err := os.ReadFile(filepath.Join(dir, "000001_request.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"parse_text"}`, string(b))
}
