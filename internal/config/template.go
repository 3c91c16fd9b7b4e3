package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigJSONC returns the commented template written by `parker init`
func DefaultConfigJSONC() string {
	return `{
  // Enumeration and checking
  "search": {
    // Exclusive upper bound on the centre x = n²
    "ceiling": 100000000,
    // Triples the producer may hold before it blocks
    "buffer_capacity": 4096,
    // Triples requested per batch, at most buffer_capacity
    "batch_size": 1024,
    // Goroutines running the square test (0 = number of CPUs)
    "workers": 0,
    // "session" (pause/resume, backpressure) or "shared" (lock-shared generator)
    "mode": "session",
    // Candidates inspected between control polls
    "poll_every": 4096,
    // Retries per second while paused or contended
    "retry_per_second": 20
  },

  // Progress checkpoints (cron expression or @every descriptor)
  "checkpoint": {
    "cron": "@every 1m"
  },

  // Control surface: MCP tools at /mcp, Prometheus at /metrics
  "server": {
    "enabled": true,
    "address": ":8090"
  },

  "log": {
    "json": false,
    "level": "info"
  },

  "data_dir": "data"
}
`
}

// WriteDefault writes the template to dir/parker.jsonc, refusing to overwrite
func WriteDefault(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigJSONC()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
