package scheduler

import "time"

// Config controls the refresh interval.
type Config struct {
	RunInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = DefaultConfig().RunInterval
	}
	return c
}
