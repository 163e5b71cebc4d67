package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigflow/sigflow/pkg/signal"
)

func writeConfig(t *testing.T, path, level string) {
	t.Helper()
	data := "log:\n  level: " + level + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("", NewLoader())
	assert.Error(t, err)
}

func TestWatcher_EmitsOnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info")

	w, err := NewWatcher(path, NewLoader(), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, path, w.ConfigPath())

	reloaded := make(chan *Config, 4)
	w.OnReload().ConnectWithType(func(cfg *Config) {
		reloaded <- cfg
	}, signal.Direct)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() { watchDone <- w.Watch(ctx) }()

	// Give the watcher time to install before touching the file.
	deadline := time.Now().Add(2 * time.Second)
	for !w.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("watcher never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writeConfig(t, path, "debug")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("reload was never announced")
	}

	require.NoError(t, w.Stop())
	<-watchDone
}

func TestWatcher_InvalidReloadEmitsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info")

	w, err := NewWatcher(path, NewLoader(), WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	reloaded := make(chan *Config, 4)
	w.OnReload().ConnectWithType(func(cfg *Config) {
		reloaded <- cfg
	}, signal.Direct)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() { watchDone <- w.Watch(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !w.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("watcher never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writeConfig(t, path, "extremely-loud")

	select {
	case <-reloaded:
		t.Fatal("invalid configuration must not be announced")
	case <-time.After(500 * time.Millisecond):
	}

	require.NoError(t, w.Stop())
	<-watchDone
}

func TestWatcher_StopTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info")

	w, err := NewWatcher(path, NewLoader())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestHotReloadableConfig_Changed(t *testing.T) {
	a := ExtractHotReloadable(DefaultConfig())
	b := a
	assert.False(t, a.Changed(b))

	b.LogLevel = "debug"
	assert.True(t, a.Changed(b))

	b = a
	b.MetricsPort = 9999
	assert.True(t, a.Changed(b))
}
