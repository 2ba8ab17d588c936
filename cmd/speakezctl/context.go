package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakez/internal/app"
	"github.com/MrWong99/speakez/internal/config"
)

type commandContext struct {
	configFlag *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return "config.yaml"
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFlag != nil && *c.envFlag != "" {
			if err := config.LoadDotEnv(*c.envFlag); err != nil {
				c.configErr = err
				return
			}
		}
		path := c.configPath()
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("config file %q not found, copy configs/example.yaml or pass --config", path)
			}
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// providers builds the configured STT and TTS providers. Callers close the
// result.
func (c *commandContext) providers() (*app.Providers, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)
	return app.BuildProviders(cfg, reg)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
