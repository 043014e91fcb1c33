package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// BackendConfig describes a single PostgreSQL backend and its shard range.
type BackendConfig struct {
	Name        string `json:"name"`
	DatabaseURL string `json:"database_url"`
	ShardStart  int    `json:"shard_start"`
	ShardEnd    int    `json:"shard_end"`
}

// ShardConfig holds the list of backends that together cover all shards.
type ShardConfig struct {
	Backends []BackendConfig `json:"backends"`
}

// LoadShardConfig reads a JSON shard config file and validates it against numShards.
func LoadShardConfig(path string, numShards int) (*ShardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shard config: %w", err)
	}

	var cfg ShardConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse shard config: %w", err)
	}
	if err := cfg.validate(numShards); err != nil {
		return nil, fmt.Errorf("shard config: %w", err)
	}
	return &cfg, nil
}

// validate checks that every shard in [0, numShards) is owned by exactly
// one backend.
func (c *ShardConfig) validate(numShards int) error {
	if numShards <= 0 {
		return fmt.Errorf("num_shards must be positive, got %d", numShards)
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("no backends defined")
	}

	owner := make([]string, numShards)
	for i, b := range c.Backends {
		switch {
		case b.DatabaseURL == "":
			return fmt.Errorf("backend %q (#%d) has empty database_url", b.Name, i)
		case b.ShardStart < 0 || b.ShardEnd < 0:
			return fmt.Errorf("backend %q has negative shard range", b.Name)
		case b.ShardStart > b.ShardEnd:
			return fmt.Errorf("backend %q has shard_start (%d) > shard_end (%d)", b.Name, b.ShardStart, b.ShardEnd)
		case b.ShardEnd >= numShards:
			return fmt.Errorf("backend %q shard_end (%d) >= num_shards (%d)", b.Name, b.ShardEnd, numShards)
		}
		label := b.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		for s := b.ShardStart; s <= b.ShardEnd; s++ {
			if owner[s] != "" {
				return fmt.Errorf("shard %d is covered by both %q and %q", s, owner[s], label)
			}
			owner[s] = label
		}
	}

	for s, name := range owner {
		if name == "" {
			return fmt.Errorf("shard %d is not covered by any backend", s)
		}
	}
	return nil
}

// BackendFor returns the backend owning shardID.
func (c *ShardConfig) BackendFor(shardID int) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if shardID >= b.ShardStart && shardID <= b.ShardEnd {
			return b, true
		}
	}
	return BackendConfig{}, false
}
