package config

import (
	"errors"
	"fmt"
)

var validExecModes = map[string]bool{"server": true, "cli": true}
var validLoadModes = map[string]bool{"on_demand": true, "preload": true}

// Validate ensures the configuration is usable, joining every problem found
// so a user fixes a bad config file in one pass instead of one error at a time.
func (c *Config) Validate() error {
	var errs []error
	if err := c.validateServer(); err != nil {
		errs = append(errs, err)
	}
	if err := c.validateDB(); err != nil {
		errs = append(errs, err)
	}
	if err := c.validateQueue(); err != nil {
		errs = append(errs, err)
	}
	if err := c.validateDownloads(); err != nil {
		errs = append(errs, err)
	}
	if err := c.validateModels(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) validateServer() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	return nil
}

func (c *Config) validateDB() error {
	if c.DB.Path == "" {
		return errors.New("db.path must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.PollIntervalMs <= 0 {
		return errors.New("queue.poll_interval_ms must be greater than zero")
	}
	if c.Queue.HeartbeatTimeoutMs <= c.Queue.HeartbeatIntervalMs {
		return errors.New("queue.heartbeat_timeout_ms must exceed queue.heartbeat_interval_ms")
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if c.Downloads.MaxConcurrentJobs <= 0 {
		return errors.New("downloads.max_concurrent_jobs must be greater than zero")
	}
	if c.Downloads.RegistryBaseURL == "" {
		return errors.New("downloads.registry_base_url must be set")
	}
	return nil
}

func (c *Config) validateModels() error {
	var errs []error
	seenID := make(map[string]bool)
	seenPort := make(map[int]bool)
	for _, m := range c.Models {
		if m.ID == "" {
			errs = append(errs, errors.New("models: each entry requires an id"))
			continue
		}
		if seenID[m.ID] {
			errs = append(errs, fmt.Errorf("models[%s]: duplicate model id", m.ID))
		}
		seenID[m.ID] = true
		if !validExecModes[m.ExecMode] {
			errs = append(errs, fmt.Errorf("models[%s]: exec_mode must be %q or %q", m.ID, "server", "cli"))
		}
		if !validLoadModes[m.LoadMode] {
			errs = append(errs, fmt.Errorf("models[%s]: load_mode must be %q or %q", m.ID, "on_demand", "preload"))
		}
		if m.ExecMode == "server" && m.APIURL == "" {
			errs = append(errs, fmt.Errorf("models[%s]: api_url is required for server exec_mode", m.ID))
		}
		if m.Command == "" {
			errs = append(errs, fmt.Errorf("models[%s]: command must be set", m.ID))
		}
		if m.StartupTimeoutMs <= 0 {
			errs = append(errs, fmt.Errorf("models[%s]: startup_timeout_ms must be greater than zero", m.ID))
		}
		if m.Port != 0 {
			if m.Port < 0 || m.Port > 65535 {
				errs = append(errs, fmt.Errorf("models[%s]: port %d out of range", m.ID, m.Port))
			}
			if seenPort[m.Port] {
				errs = append(errs, fmt.Errorf("models[%s]: preferred port %d collides with another model", m.ID, m.Port))
			}
			seenPort[m.Port] = true
		}
	}
	return errors.Join(errs...)
}
