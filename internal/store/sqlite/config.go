package sqlite

import (
	"errors"
	"fmt"
)

const defaultBusyTimeoutMS = 5000

// Config holds the SQLite store options. Only Path comes from the devwarm
// config (the state key); the rest are for tests and tooling.
type Config struct {
	Path string

	// DisableWAL keeps the rollback journal. Tests on tmpfs use it.
	DisableWAL bool

	// BusyTimeoutMS is how long a writer waits on a locked database.
	// Zero means 5000.
	BusyTimeoutMS int
}

func (c *Config) defaults() {
	if c.BusyTimeoutMS == 0 {
		c.BusyTimeoutMS = defaultBusyTimeoutMS
	}
}

func (c *Config) walEnabled() bool { return !c.DisableWAL }

func (c *Config) validate() error {
	if c.Path == "" {
		return errors.New("sqlite: path is required")
	}
	if c.BusyTimeoutMS < 0 {
		return fmt.Errorf("sqlite: busy timeout must be non-negative, got %dms", c.BusyTimeoutMS)
	}
	return nil
}
