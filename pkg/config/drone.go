package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hiveswarm/hive/pkg/drone"
)

// DroneFile is the raw, mapstructure-tagged shape for a Drone process.
type DroneFile struct {
	HiveAddr          string        `mapstructure:"hive_addr"`
	WorkerID          string        `mapstructure:"worker_id"`
	MaxTasks          uint32        `mapstructure:"max_tasks"`
	Capabilities      []string      `mapstructure:"capabilities"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Jitter            float64       `mapstructure:"jitter"`
	MissTimeout       time.Duration `mapstructure:"miss_timeout"`
	MaxMisses         int           `mapstructure:"max_misses"`
	LogLevel          string        `mapstructure:"log_level"`
}

// LoadDrone reads Drone configuration from path (and the environment,
// prefixed DRONE_) and translates it into a drone.Config. worker_id
// defaults to the OS hostname when unset, matching the source's
// hostname-fallback convention.
func LoadDrone(path string) (drone.Config, string, error) {
	v := newViper("drone", path)

	v.SetDefault("hive_addr", "127.0.0.1:7420")
	v.SetDefault("max_tasks", 10)
	v.SetDefault("heartbeat_interval", "3s")
	v.SetDefault("jitter", 0.05)
	v.SetDefault("miss_timeout", "9s")
	v.SetDefault("max_misses", 3)
	v.SetDefault("log_level", "info")

	if err := readConfig(v); err != nil {
		return drone.Config{}, "", err
	}

	var f DroneFile
	if err := v.Unmarshal(&f); err != nil {
		return drone.Config{}, "", fmt.Errorf("config: decode drone config: %w", err)
	}

	if f.WorkerID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return drone.Config{}, "", fmt.Errorf("config: worker_id not set and hostname unavailable: %w", err)
		}
		f.WorkerID = hostname
	}

	cfg := drone.Config{
		HiveAddr:          f.HiveAddr,
		WorkerID:          f.WorkerID,
		MaxTasks:          f.MaxTasks,
		Capabilities:      f.Capabilities,
		HeartbeatInterval: f.HeartbeatInterval,
		Jitter:            f.Jitter,
		MissTimeout:       f.MissTimeout,
		MaxMisses:         f.MaxMisses,
	}
	return cfg, f.LogLevel, nil
}
