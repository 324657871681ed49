package config

import (
	"time"

	chathttp "github.com/wesleyorama2/chatload/internal/http"
	"github.com/wesleyorama2/chatload/internal/loadgen"
	"github.com/wesleyorama2/chatload/internal/profile"
)

// LoadgenConfig returns the runner settings.
func (c *RunConfig) LoadgenConfig() loadgen.Config {
	return loadgen.Config{
		Users:       c.Users,
		SpawnRate:   c.SpawnRate,
		RunTime:     time.Duration(c.RunTime),
		StopTimeout: time.Duration(c.StopTimeout),
	}
}

// PoolConfig returns the shared transport settings.
func (c *RunConfig) PoolConfig() chathttp.PoolConfig {
	pool := chathttp.DefaultPoolConfig()
	pool.Timeout = c.HTTP.Timeout.GetDuration(pool.Timeout)
	if c.HTTP.MaxIdleConnsPerHost > 0 {
		pool.MaxIdleConnsPerHost = c.HTTP.MaxIdleConnsPerHost
	}
	pool.InsecureSkipVerify = c.HTTP.InsecureSkipVerify
	return pool
}

// WaitFunc returns the think-time sampler.
func (c *RunConfig) WaitFunc() loadgen.WaitFunc {
	return loadgen.Between(time.Duration(c.WaitTime.Min), time.Duration(c.WaitTime.Max))
}

// Weights returns the profile action weights.
func (c *RunConfig) Weights() profile.Weights {
	if c.Tasks == nil {
		return profile.DefaultWeights()
	}
	return profile.Weights{
		Health:   c.Tasks.Health,
		Messages: c.Tasks.Messages,
		Socket:   c.Tasks.Socket,
	}
}
