package cli

import (
	"net"
	"strconv"

	"freqgate/internal/config"

	"github.com/rs/zerolog"
)

// CLIContext carries the loaded configuration and logger between the
// root command and subcommands.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool
}

// Log returns the context logger, falling back to a nop logger when
// the context was built before logger initialization.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// ServerURL builds the base URL of the gateway from the loaded config.
func (c *CLIContext) ServerURL() string {
	host := "localhost"
	port := 8080
	if c.Config != nil {
		if c.Config.Gateway.Host != "" {
			host = c.Config.Gateway.Host
		}
		if c.Config.Gateway.Port != 0 {
			port = c.Config.Gateway.Port
		}
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
