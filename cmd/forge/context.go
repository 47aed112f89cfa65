package main

import (
	"strings"
	"sync"

	"forge/internal/config"
	"forge/internal/forgectl"
)

// commandContext lazily loads configuration and builds an HTTP client
// against the daemon's bind address, shared across every subcommand.
type commandContext struct {
	configFlag *string
	bindFlag   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, bindFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, bindFlag: bindFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// bind resolves the daemon's address: the --bind flag wins, then the
// resolved config's server.bind, falling back to the compiled-in default.
func (c *commandContext) bind() string {
	if c.bindFlag != nil {
		if b := strings.TrimSpace(*c.bindFlag); b != "" {
			return b
		}
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil && cfg.Server.Bind != "" {
		return cfg.Server.Bind
	}
	return "127.0.0.1:8390"
}

func (c *commandContext) client() *forgectl.Client {
	return forgectl.New(c.bind())
}
