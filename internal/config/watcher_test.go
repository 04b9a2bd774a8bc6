package config

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"agromind/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestConfigWatcher_Start_InvalidPath(t *testing.T) {
	clearEnv(t)
	watcher := NewConfigWatcher("/nonexistent/config.json", quietLogger())

	err := watcher.Start(context.Background())
	assert.Error(t, err)
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.json", `{"retentionDays": 30, "log_level": "info"}`)

	watcher := NewConfigWatcher(path, quietLogger())
	watcher.interval = 20 * time.Millisecond

	changed := make(chan *models.Config, 1)
	watcher.OnConfigChange(func(c *models.Config) {
		select {
		case changed <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 30, watcher.GetConfig().RetentionDays)

	require.NoError(t, os.WriteFile(path, []byte(`{"retentionDays": 7, "log_level": "debug"}`), 0644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case c := <-changed:
		assert.Equal(t, 7, c.RetentionDays)
		assert.Equal(t, "debug", c.LogLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked after config change")
	}
	assert.Equal(t, 7, watcher.GetConfig().RetentionDays)

	cancel()
	assert.NoError(t, <-done)
}

func TestConfigWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.json", `{"retentionDays": 30}`)

	watcher := NewConfigWatcher(path, quietLogger())
	watcher.config, _ = LoadConfig(path)

	require.NoError(t, os.WriteFile(path, []byte(`{"retentionDays": -5}`), 0644))
	watcher.reloadConfig()

	assert.Equal(t, 30, watcher.GetConfig().RetentionDays)
}

func TestConfigWatcher_CallbackPanicRecovered(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.json", `{}`)

	watcher := NewConfigWatcher(path, quietLogger())
	called := false
	watcher.OnConfigChange(func(*models.Config) { panic("boom") })
	watcher.OnConfigChange(func(*models.Config) { called = true })

	assert.NotPanics(t, watcher.reloadConfig)
	assert.True(t, called)
}

func TestConfigWatcher_PollIgnoresUntouchedFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.json", `{"retentionDays": 30}`)

	watcher := NewConfigWatcher(path, quietLogger())
	info, err := os.Stat(path)
	require.NoError(t, err)
	watcher.stamp = stampOf(info)

	calls := 0
	watcher.OnConfigChange(func(*models.Config) { calls++ })

	watcher.poll()
	assert.Zero(t, calls)

	// same mtime, different size
	require.NoError(t, os.WriteFile(path, []byte(`{"retentionDays": 7}`), 0644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))
	watcher.poll()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 7, watcher.GetConfig().RetentionDays)
}

func TestRestartRequired(t *testing.T) {
	base := models.Config{}
	base.Server.Port = 4000
	base.Database.Path = "a.db"

	next := base
	next.RetentionDays = 7
	next.LogLevel = "debug"
	assert.Empty(t, restartRequired(&base, &next))

	next.Server.Port = 5000
	next.Database.Path = "b.db"
	next.Fanout.Redis.Enabled = true
	assert.Equal(t, []string{"server.port", "database.path", "fanout.redis"}, restartRequired(&base, &next))
}
