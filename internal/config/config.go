// Package config loads and validates the broker's YAML configuration:
// a store backend selector and the RPC transport's ACL and port,
// separated into typed struct, I/O, and validation concerns.
package config

// StoreConfig selects and configures a MessageStore backend.
// Type is one of "disk", "sqlite", "postgres"; "mysql" is also
// accepted and is served by the PostgreSQL store.
type StoreConfig struct {
	Type string `yaml:"type"`

	// disk
	Path  string `yaml:"path,omitempty"`
	Fsync bool   `yaml:"fsync,omitempty"`

	// sqlite
	// Path is reused for the sqlite database file.

	// postgres
	Host     string `yaml:"host,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Socket   string `yaml:"socket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// DRBConfig configures the RPC transport (named "drb" after the
// original broker's distributed-ruby transport).
type DRBConfig struct {
	Port int    `yaml:"port,omitempty"`
	ACL  string `yaml:"acl,omitempty"`
}

// TracingConfig configures optional OpenTelemetry export of the
// transport's HTTP spans. It is off by default; a deployment turns it on
// by pointing Collector at an OTLP/HTTP endpoint.
type TracingConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Collector string `yaml:"collector,omitempty"`
	Insecure  bool   `yaml:"insecure,omitempty"`
}

// Config is the top-level YAML document.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	DRB     DRBConfig     `yaml:"drb"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// DefaultPort is the manager's default loopback RPC port.
const DefaultPort = 6438

// DefaultPrefix is the table-name prefix used when a SQL store config
// omits one.
const DefaultPrefix = "msg_"

// WithDefaults returns a copy of cfg with zero-valued fields replaced
// by their defaults.
func (c Config) WithDefaults() Config {
	out := c
	if out.DRB.Port == 0 {
		out.DRB.Port = DefaultPort
	}
	if out.DRB.ACL == "" {
		out.DRB.ACL = "allow 127.0.0.1"
	}
	if out.Store.Type == "postgres" && out.Store.Prefix == "" {
		out.Store.Prefix = DefaultPrefix
	}
	if out.Store.Type == "sqlite" && out.Store.Prefix == "" {
		out.Store.Prefix = DefaultPrefix
	}
	return out
}
