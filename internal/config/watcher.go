package config

import (
	"context"
	"os"
	"sync"
	"time"

	"whatsdata/internal/models"

	"github.com/sirupsen/logrus"
)

// ConfigWatcher polls the configuration file and reloads it when it changes
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	lastMod    time.Time
	callbacks  []func(*models.Config)
}

// NewConfigWatcher creates a watcher seeded with the configuration already loaded from configPath
func NewConfigWatcher(configPath string, initial *models.Config, interval time.Duration, logger *logrus.Logger) *ConfigWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	cw := &ConfigWatcher{
		configPath: configPath,
		interval:   interval,
		logger:     logger,
		config:     initial,
		callbacks:  make([]func(*models.Config), 0),
	}
	if stat, err := os.Stat(configPath); err == nil {
		cw.lastMod = stat.ModTime()
	}
	return cw
}

// Serve polls until ctx is cancelled
func (cw *ConfigWatcher) Serve(ctx context.Context) error {
	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return ctx.Err()
		case <-ticker.C:
			cw.poll()
		}
	}
}

func (cw *ConfigWatcher) String() string {
	return "config-watcher"
}

func (cw *ConfigWatcher) poll() {
	stat, err := os.Stat(cw.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			cw.logger.WithError(err).Error("Failed to stat configuration file")
		}
		return
	}
	if !stat.ModTime().After(cw.lastMod) {
		return
	}
	cw.lastMod = stat.ModTime()
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
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration, keeping previous")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	// callbacks run synchronously so they observe reloads in order
	for _, cb := range callbacks {
		cw.runCallback(cb, newConfig)
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

func (cw *ConfigWatcher) runCallback(cb func(*models.Config), c *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	cb(c)
}

func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{"old": old.LogLevel, "new": new.LogLevel}).Info("Log level changed")
	}
	if old.Server.RateLimitPerMinute != new.Server.RateLimitPerMinute {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Server.RateLimitPerMinute,
			"new": new.Server.RateLimitPerMinute,
		}).Info("Rate limit changed")
	}
	if old.Storage.BaseDir != new.Storage.BaseDir || old.Server.Port != new.Server.Port {
		cw.logger.Warn("Storage base directory and port changes take effect after restart")
	}
}
