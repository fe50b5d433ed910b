package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"clipforge/internal/api"
	"clipforge/internal/config"
)

type globalFlags struct {
	config   string
	server   string
	token    string
	logLevel string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
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

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.config)
}

func (c *commandContext) logLevel() string {
	return strings.TrimSpace(c.flags.logLevel)
}

// serverAddress resolves the daemon address: --server, then api.bind.
func (c *commandContext) serverAddress() (string, error) {
	if server := strings.TrimSpace(c.flags.server); server != "" {
		return server, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.API.Bind, nil
}

func (c *commandContext) apiClient() (*api.Client, error) {
	addr, err := c.serverAddress()
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(c.flags.token)
	if token == "" {
		if cfg, err := c.ensureConfig(); err == nil {
			token = cfg.API.Token
		}
	}
	return api.NewClient(addr, token), nil
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.apiClient()
	if err != nil {
		return err
	}
	addr, _ := c.serverAddress()
	return wrapClientError(fn(client), addr)
}

func wrapClientError(err error, addr string) error {
	var statusErr *api.StatusError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, api.ErrUnavailable):
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `clipforge start`", addr)
	case errors.As(err, &statusErr):
		return errors.New(statusErr.Message)
	default:
		return err
	}
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
