package dullahan

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the server reads at startup. Defaults live
// here; cmd/dullahan wires them to cobra flags and this file applies
// environment overrides on top, following
// _examples/cemoody-c3/config.go's flag-then-env-override layering.
type Config struct {
	ListenAddr string

	TLSCertFile string
	TLSKeyFile  string
	BindAll     bool

	DefaultCols int
	DefaultRows int
	ShellPath   string

	IdlePingInterval time.Duration
	IdlePongTimeout  time.Duration

	MaxWriteBufferBytes int
	MaxHeaderBytes      int
	MaxSnapshotBytes    int

	ControlSocketPath string
}

// DefaultConfig returns the built-in defaults, before flag or env
// overrides are applied.
func DefaultConfig() *Config {
	shell := DetectShell()
	return &Config{
		ListenAddr:          ":7890",
		DefaultCols:         80,
		DefaultRows:         24,
		ShellPath:           shell,
		IdlePingInterval:    30 * time.Second,
		IdlePongTimeout:     30 * time.Second,
		MaxWriteBufferBytes: maxWriteBufferBytes,
		MaxHeaderBytes:      maxHeaderBytes,
		MaxSnapshotBytes:    maxSnapshotBytes,
	}
}

// ApplyEnvOverrides layers DULLAHAN_* environment variables on top of
// whatever flags already set, matching the teacher's env-override
// convention (_examples/cemoody-c3/config.go).
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DULLAHAN_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DULLAHAN_TLS_CERT"); v != "" {
		c.TLSCertFile = v
	}
	if v := os.Getenv("DULLAHAN_TLS_KEY"); v != "" {
		c.TLSKeyFile = v
	}
	if v := os.Getenv("DULLAHAN_SHELL"); v != "" {
		c.ShellPath = v
	}
	if v := os.Getenv("DULLAHAN_IDLE_PING_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.IdlePingInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("DULLAHAN_IDLE_PONG_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.IdlePongTimeout = time.Duration(n) * time.Second
		}
	}
}

// TLSEnabled reports whether both a cert and key were configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
