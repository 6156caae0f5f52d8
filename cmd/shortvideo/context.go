package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"shortvideo/internal/client"
	"shortvideo/internal/config"
)

const clientTimeout = 60 * time.Second

type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
}

// ensureConfig applies .env files, then loads and validates the config once
// per invocation.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := c.flagPath()
		envBase := path
		if envBase == "" {
			if defaultPath, err := config.DefaultConfigPath(); err == nil {
				envBase = defaultPath
			}
		}
		if _, err := config.LoadEnvFiles(config.DefaultEnvFiles(envBase)...); err != nil {
			c.configErr = err
			return
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// serverAddress prefers --server and falls back to the configured bind.
func (c *commandContext) serverAddress() (string, error) {
	if c.serverFlag != nil {
		if value := strings.TrimSpace(*c.serverFlag); value != "" {
			return value, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if cfg.Server.PublicURL != "" {
		return cfg.Server.PublicURL, nil
	}
	return cfg.Server.Bind, nil
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	addr, err := c.serverAddress()
	if err != nil {
		return err
	}
	if addr == "" {
		return fmt.Errorf("gateway address is empty; set server.bind or pass --server")
	}
	return fn(client.New(addr, clientTimeout))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
