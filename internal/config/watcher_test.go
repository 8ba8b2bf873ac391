package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regioncore.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	changes := make(chan *Config, 4)
	w.OnChange(func(c *Config) { changes <- c })

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Same(t, cfg, w.Current())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcherRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regioncore.toml")
	require.NoError(t, os.WriteFile(path, []byte("[events]\ncapacity = 8\n"), 0o644))

	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	var calls atomic.Int32
	w.OnChange(func(*Config) { calls.Add(1) })

	require.NoError(t, os.WriteFile(path, []byte("[events]\ncapacity = 0\n"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Zero(t, calls.Load())
	assert.Same(t, initial, w.Current())
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regioncore.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := NewWatcher(path, Default(), WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	var calls atomic.Int32
	w.OnChange(func(*Config) { calls.Add(1) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Zero(t, calls.Load())
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regioncore.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := NewWatcher(path, Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.NoError(t, w.Close())
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "regioncore.toml"), Default())
	assert.Error(t, err)
}
