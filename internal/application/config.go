// internal/application/config.go
package application

import "time"

type Config struct {
	PublishTimeout time.Duration
	MaxCASAttempts int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PublishTimeout <= 0 {
		out.PublishTimeout = 2 * time.Second
	}
	if out.MaxCASAttempts <= 0 {
		out.MaxCASAttempts = 3
	}
	return out
}
