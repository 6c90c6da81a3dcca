package config

import (
	"net"
	"strings"
)

// Environment variables that override server.listen_addr.
const (
	EnvHost = "HOST"
	EnvPort = "PORT"
)

// ApplyEnv overrides the host and port halves of cfg.Server.ListenAddr with
// HOST and PORT when lookup reports them set. Pass [os.LookupEnv] in
// production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	host, port, err := net.SplitHostPort(cfg.Server.ListenAddr)
	if err != nil {
		host, port = "", strings.TrimPrefix(cfg.Server.ListenAddr, ":")
	}
	changed := false
	if v, ok := lookup(EnvHost); ok && v != "" {
		host, changed = v, true
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, changed = v, true
	}
	if changed {
		cfg.Server.ListenAddr = net.JoinHostPort(host, port)
	}
}
