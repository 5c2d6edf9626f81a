package storageengine

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		BaseDir:            t.TempDir(),
		BufferPoolCapacity: 4,
		Logger:             slog.New(slog.DiscardHandler),
	}
}

func TestDefaultsFillZeroFields(t *testing.T) {
	cfg := testConfig(t)
	se, err := NewStorageEngine(cfg)
	require.NoError(t, err)
	defer se.Close()

	assert.Equal(t, 4, se.BufferPool.Capacity())
	assert.Equal(t, cfg.BaseDir, se.BaseDir)
}

func TestOpenHeapFileCreatesThenLoads(t *testing.T) {
	cfg := testConfig(t)

	se, err := NewStorageEngine(cfg)
	require.NoError(t, err)
	hf, err := se.OpenHeapFile("notes", 1)
	require.NoError(t, err)
	ptr, err := hf.InsertRecord([]byte("remember the milk"))
	require.NoError(t, err)
	require.NoError(t, se.Close())
	require.NoError(t, se.Close())

	_, err = se.OpenHeapFile("notes", 1)
	assert.Error(t, err)

	se, err = NewStorageEngine(cfg)
	require.NoError(t, err)
	defer se.Close()

	hf, err = se.OpenHeapFile("notes", 1)
	require.NoError(t, err)
	got, err := hf.GetRecord(ptr)
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(got))
}
