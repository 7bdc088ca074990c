package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned by Validate when the configured
// auth method lacks its credential material.
var ErrMissingCredentials = errors.New("config: missing credentials")

// AuthMethod selects how the link authenticates to the uplink.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthCertFP   AuthMethod = "certificate-fingerprint"
)

// DefaultProtoctl is the protocol extension set announced during
// negotiation when the configuration does not override it.
var DefaultProtoctl = []string{
	"NOQUIT", "NICKv2", "SJOIN", "SJ3", "NICKIP", "UMODE2", "VHP", "EAUTH", "SID", "MTAGS",
}

// Config holds all link configuration.
type Config struct {
	Host        string     `yaml:"host"`
	Port        int        `yaml:"port"`
	SID         string     `yaml:"sid"`
	ServerName  string     `yaml:"server_name"`
	Description string     `yaml:"description"`
	Network     string     `yaml:"network"`
	AuthMethod  AuthMethod `yaml:"auth_method"`
	Password    string     `yaml:"password"`
	CertFile    string     `yaml:"cert_file"`
	KeyFile     string     `yaml:"key_file"`
	Protoctl    []string   `yaml:"protoctl"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthPassword
	}
	if len(cfg.Protoctl) == 0 {
		cfg.Protoctl = DefaultProtoctl
	}
	if cfg.Description == "" {
		cfg.Description = "UnrealIRCd S2S client"
	}

	return &cfg, nil
}

// Validate checks the configuration before any connection attempt.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("config: server_name is required")
	}
	if len(c.SID) != 3 {
		return fmt.Errorf("config: sid must be exactly 3 characters, got %q", c.SID)
	}
	switch c.AuthMethod {
	case AuthPassword:
		if c.Password == "" {
			return fmt.Errorf("%w: password auth requires a password", ErrMissingCredentials)
		}
	case AuthCertFP:
		if c.CertFile == "" || c.KeyFile == "" {
			return fmt.Errorf("%w: certificate auth requires cert_file and key_file", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("config: unknown auth_method %q", c.AuthMethod)
	}
	return nil
}

// Addr returns the uplink's dial address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
