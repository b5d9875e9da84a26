// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var DefaultConfig = Config{
	SelectionCacheSize: 64,
	HistoryLength:      256,
}

// Config provides the execution parameters of partial set security. The
// per-consumer N itself is chain state set by governance, not configuration;
// everything here only affects performance and retention, never selection
// results.
type Config struct {
	// TrackedConsumers are the consumer chains whose top-N selections this
	// node memoizes. Selections for untracked consumers are recomputed on
	// every query.
	TrackedConsumers set.Set[ids.ID] `json:"tracked-consumers"`

	// SelectionCacheSize bounds the number of memoized selections per
	// tracked consumer.
	SelectionCacheSize int `json:"selection-cache-size"`

	// HistoryLength is the number of voting-power snapshots retained before
	// pruning.
	HistoryLength uint64 `json:"history-length"`
}

func (c *Config) Validate() error {
	if c.SelectionCacheSize < 0 {
		return fmt.Errorf("selection-cache-size (%d) < 0", c.SelectionCacheSize)
	}
	if c.HistoryLength == 0 {
		return fmt.Errorf("history-length must be positive")
	}
	return nil
}

// GetConfig returns a Config initialized with default values and overridden
// by the JSON in [b], if any.
func GetConfig(b []byte) (*Config, error) {
	c := DefaultConfig

	if len(b) == 0 {
		return &c, nil
	}

	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, c.Validate()
}
