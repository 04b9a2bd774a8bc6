package config

import (
	"context"
	"os"
	"sync"
	"time"

	"agromind/internal/constants"
	"agromind/internal/models"

	"github.com/sirupsen/logrus"
)

// ConfigWatcher polls the configuration file and hands each valid revision
// to the registered callbacks. Log level and retention are applied live;
// settings listed by restartRequired only take effect on the next start.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger

	mu        sync.RWMutex
	config    *models.Config
	stamp     fileStamp
	callbacks []func(*models.Config)
}

// fileStamp identifies one revision of the file on disk
type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		interval:   constants.ConfigPollIntervalSec * time.Second,
		logger:     logger,
	}
}

// Start loads the file and then polls it until ctx is done.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	info, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = cfg
	cw.stamp = stampOf(info)
	cw.mu.Unlock()

	cw.logger.WithFields(logrus.Fields{
		"path":     cw.configPath,
		"interval": cw.interval.String(),
	}).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil
		case <-ticker.C:
			cw.poll()
		}
	}
}

// poll reloads when the file's stamp differs from the last one seen
func (cw *ConfigWatcher) poll() {
	info, err := os.Stat(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to stat configuration file")
		return
	}

	next := stampOf(info)
	cw.mu.Lock()
	unchanged := next == cw.stamp
	cw.stamp = next
	cw.mu.Unlock()

	if unchanged {
		return
	}
	cw.logger.Debug("Configuration file changed")
	cw.reloadConfig()
}

// GetConfig returns the current configuration
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback run after every successful reload
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) reloadConfig() {
	next, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration, keeping previous one")
		return
	}

	cw.mu.Lock()
	prev := cw.config
	cw.config = next
	callbacks := append([]func(*models.Config){}, cw.callbacks...)
	cw.mu.Unlock()

	fields := logrus.Fields{}
	if prev != nil {
		fields["retention_days"] = next.RetentionDays
		fields["log_level"] = next.LogLevel
		if pending := restartRequired(prev, next); len(pending) > 0 {
			cw.logger.WithField("settings", pending).Warn("Configuration changes need a restart to apply")
		}
	}
	cw.logger.WithFields(fields).Info("Configuration reloaded")

	for _, callback := range callbacks {
		cw.notify(callback, next)
	}
}

func (cw *ConfigWatcher) notify(callback func(*models.Config), cfg *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	callback(cfg)
}

// restartRequired names the changed settings that are only read at startup
func restartRequired(prev, next *models.Config) []string {
	var changed []string
	check := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}

	check("server.port", prev.Server.Port != next.Server.Port)
	check("server.static_dir", prev.Server.StaticDir != next.Server.StaticDir)
	check("database.path", prev.Database.Path != next.Database.Path)
	check("uploads.dir", prev.Uploads.Dir != next.Uploads.Dir)
	check("auth.otp_code", prev.Auth.OTPCode != next.Auth.OTPCode)
	check("fanout.redis", prev.Fanout.Redis != next.Fanout.Redis)
	check("rate_limit", prev.RateLimit != next.RateLimit)
	check("tracing", prev.Tracing != next.Tracing)
	return changed
}
