package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"studio/internal/client"
	"studio/internal/config"
)

const tokenEnv = "STUDIO_TOKEN"

type commandContext struct {
	configFlag string
	serverFlag string
	tokenFlag  string
	jsonFlag   bool
	envFile    string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// serverAddress resolves --server, falling back to a dialable form of server.bind.
func (c *commandContext) serverAddress() (string, error) {
	if addr := strings.TrimSpace(c.serverFlag); addr != "" {
		return addr, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return dialAddress(cfg.Server.Bind), nil
}

func (c *commandContext) token() string {
	if token := strings.TrimSpace(c.tokenFlag); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv(tokenEnv))
}

func (c *commandContext) client() (*client.Client, error) {
	addr, err := c.serverAddress()
	if err != nil {
		return nil, err
	}
	return client.New(addr, client.WithToken(c.token()))
}

// dialAddress rewrites wildcard listen hosts to loopback.
func dialAddress(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		return bind
	}
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func wrapClientError(err error, server string) error {
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to studio: %s refused the connection; start the server with `studio serve`", server)
	default:
		return fmt.Errorf("connect to studio: %w", err)
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
