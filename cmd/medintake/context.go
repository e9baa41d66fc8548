package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"medintake/internal/api"
	"medintake/internal/config"
	"medintake/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withService opens the full pipeline for one command invocation and closes
// it when the command returns.
func (c *commandContext) withService(fn func(*api.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	service, err := api.New(cfg, logger)
	if err != nil {
		return err
	}
	defer service.Close()
	return fn(service)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
