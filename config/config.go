// Package config defines the Data Server's CLI surface (spec §6) using
// pflag for GNU-style long/short flags, the one flag library anywhere
// in the example pack that supports it (promoted here from the
// teacher's indirect dependency on spf13/pflag).
package config

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/nspyre-org/nspyre-sub001/cmn/nlog"
)

const DefaultPort = 30000

// Config holds the server's runtime settings. No field here is ever
// persisted across restarts (spec §6 "Persisted state: None").
type Config struct {
	Port        int
	BindHost    string
	LogPath     string
	Verbosity   string
	Quiet       bool
	MetricsPort int // 0 disables the metrics listener (SPEC_FULL.md §5.1)
}

// Parse builds a Config from the given argument list (typically
// os.Args[1:]) and validates it.
func Parse(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("datasrv", pflag.ContinueOnError)

	cfg := &Config{}
	fs.IntVarP(&cfg.Port, "port", "p", DefaultPort, "TCP port to listen on")
	fs.StringVarP(&cfg.LogPath, "log", "l", "", "log to the given file instead of stderr")
	fs.StringVarP(&cfg.Verbosity, "verbosity", "v", "info", "log verbosity: debug, info, warning, error")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", false, "disable all logging")
	fs.StringVar(&cfg.BindHost, "bind", "localhost", "host/address to bind the listener to")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", 0, "port to expose Prometheus metrics on (0 disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if _, err := nlog.ParseSeverity(cfg.Verbosity); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// ApplyLogging wires the config's verbosity/quiet/log-path settings
// into the nlog package. Call once, before starting the server.
func (c *Config) ApplyLogging() error {
	sev, err := nlog.ParseSeverity(c.Verbosity)
	if err != nil {
		return err
	}
	nlog.SetThreshold(sev)
	nlog.SetQuiet(c.Quiet)
	return nlog.SetOutput(c.LogPath)
}
