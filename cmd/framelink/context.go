package main

import (
	"strings"
	"sync"

	"github.com/1broseidon/framelink/internal/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	result     *config.LoadResult
	path       string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// configPath is the --config value, or the default location.
func (c *commandContext) configPath() (string, error) {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p, nil
		}
	}
	return config.DefaultConfigPath()
}

func (c *commandContext) ensureLoaded() (*config.LoadResult, error) {
	c.configOnce.Do(func() {
		path, err := c.configPath()
		if err != nil {
			c.configErr = err
			return
		}
		res, err := config.LoadFromPath(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.path = path
		c.result = res
	})
	return c.result, c.configErr
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	res, err := c.ensureLoaded()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}
