package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the periodic task runner.
type Config struct {
	// TaskTimeout is the maximum time a single task run is allowed to take.
	// The run's context is canceled when it is exceeded.
	// Default: 2 minutes
	TaskTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running tasks to return.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// RunOnStart runs every task once immediately instead of waiting for
	// its first interval.
	RunOnStart bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:     2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		RunOnStart:      true,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.TaskTimeout < 1*time.Second {
		return fmt.Errorf("task timeout must be at least 1 second, got %v", c.TaskTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
