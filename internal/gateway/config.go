package gateway

import (
	"fmt"
	"net"
	"time"

	"github.com/flemzord/devwarm/internal/security"
)

// DefaultBind keeps the gateway on loopback unless the operator opts out.
const DefaultBind = "127.0.0.1:8089"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string                   `yaml:"bind"`
	Auth            AuthConfig               `yaml:"auth"`
	RateLimit       security.RateLimitConfig `yaml:"rate_limit"`
	AuditLog        string                   `yaml:"audit_log"`
	ReadTimeout     time.Duration            `yaml:"read_timeout"`
	WriteTimeout    time.Duration            `yaml:"write_timeout"`
	ShutdownTimeout time.Duration            `yaml:"shutdown_timeout"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = DefaultBind
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate checks the bind address. An empty bind is valid and means DefaultBind.
func (c Config) Validate() error {
	if c.Bind != "" {
		if _, _, err := net.SplitHostPort(c.Bind); err != nil {
			return fmt.Errorf("invalid bind address %q: %w", c.Bind, err)
		}
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		return fmt.Errorf("auth: basic_user and basic_pass must be set together")
	}
	return nil
}

// AuthConfig configures authentication for admin endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
