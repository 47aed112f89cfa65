package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeQueue()
	c.normalizeLogging()
	c.normalizeModels()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.DB.Path, err = expandPath(c.DB.Path); err != nil {
		return fmt.Errorf("db.path: %w", err)
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	if c.Downloads.Dir, err = expandPath(c.Downloads.Dir); err != nil {
		return fmt.Errorf("downloads.dir: %w", err)
	}
	if c.Images.Dir, err = expandPath(c.Images.Dir); err != nil {
		return fmt.Errorf("images.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultAPIBind
	}
	if c.Server.ReadHeaderTimout <= 0 {
		c.Server.ReadHeaderTimout = 5
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10
	}
}

func (c *Config) normalizeQueue() {
	if c.Queue.PollIntervalMs <= 0 {
		c.Queue.PollIntervalMs = defaultQueuePollMs
	}
	if c.Queue.ErrorRetryIntervalMs <= 0 {
		c.Queue.ErrorRetryIntervalMs = defaultQueueErrorRetryMs
	}
	if c.Queue.HeartbeatIntervalMs <= 0 {
		c.Queue.HeartbeatIntervalMs = defaultHeartbeatMs
	}
	if c.Queue.HeartbeatTimeoutMs <= 0 {
		c.Queue.HeartbeatTimeoutMs = defaultHeartbeatTimeoutMs
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeModels() {
	for i := range c.Models {
		m := &c.Models[i]
		m.ID = strings.TrimSpace(m.ID)
		m.ExecMode = strings.ToLower(strings.TrimSpace(m.ExecMode))
		m.LoadMode = strings.ToLower(strings.TrimSpace(m.LoadMode))
		if m.LoadMode == "" {
			m.LoadMode = "on_demand"
		}
		if m.StartupTimeoutMs <= 0 {
			m.StartupTimeoutMs = defaultStartupTimeoutMs
		}
	}
}
