// Package config loads Hive and Drone configuration from a config file,
// environment variables and built-in defaults, priority env > file >
// defaults, matching the transcode-worker's viper loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hiveswarm/hive/pkg/engine"
	"github.com/hiveswarm/hive/pkg/hive"
	"github.com/hiveswarm/hive/pkg/placement"
	"github.com/hiveswarm/hive/pkg/registry"
)

// HiveFile is the raw, mapstructure-tagged shape read from config.yaml /
// environment variables before translation into hive.Config.
type HiveFile struct {
	BindAddr            string        `mapstructure:"bind_addr"`
	LogLevel            string        `mapstructure:"log_level"`
	ReconcileTick        time.Duration `mapstructure:"reconcile_tick"`
	PollTimeout          time.Duration `mapstructure:"poll_timeout"`
	MaxActive            int           `mapstructure:"max_active"`
	MissDeadline         time.Duration `mapstructure:"miss_deadline"`
	MaxMisses            int           `mapstructure:"max_misses"`
	EMAAlpha             float64       `mapstructure:"ema_alpha"`
	RegistryLockTimeout  time.Duration `mapstructure:"registry_lock_timeout"`
	MaxLoadThreshold     float64       `mapstructure:"max_load_threshold"`
	Cores                int           `mapstructure:"cores"`
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	Dispatchers          int           `mapstructure:"dispatchers"`
	BackPressure         bool          `mapstructure:"back_pressure"`
	SlowDispatch         time.Duration `mapstructure:"slow_dispatch"`
	GraceOnShutdown      time.Duration `mapstructure:"grace_on_shutdown"`
	ScaleOutWarmup       time.Duration `mapstructure:"scale_out_warmup"`
}

// LoadHive reads Hive configuration from path (and the environment,
// prefixed HIVE_) and translates it into a hive.Config.
func LoadHive(path string) (hive.Config, string, error) {
	v := newViper("hive", path)

	v.SetDefault("bind_addr", "0.0.0.0:7420")
	v.SetDefault("log_level", "info")
	v.SetDefault("reconcile_tick", "1s")
	v.SetDefault("poll_timeout", "100ms")
	v.SetDefault("max_active", 10)
	v.SetDefault("miss_deadline", "9s")
	v.SetDefault("max_misses", 3)
	v.SetDefault("ema_alpha", 0.5)
	v.SetDefault("registry_lock_timeout", "100ms")
	v.SetDefault("max_load_threshold", 0.8)
	v.SetDefault("cores", 0)
	v.SetDefault("queue_capacity", 1024)
	v.SetDefault("dispatchers", 8)
	v.SetDefault("back_pressure", false)
	v.SetDefault("slow_dispatch", "50ms")
	v.SetDefault("grace_on_shutdown", "5s")
	v.SetDefault("scale_out_warmup", "5s")

	if err := readConfig(v); err != nil {
		return hive.Config{}, "", err
	}

	var f HiveFile
	if err := v.Unmarshal(&f); err != nil {
		return hive.Config{}, "", fmt.Errorf("config: decode hive config: %w", err)
	}

	cfg := hive.Config{
		BindAddr:      f.BindAddr,
		ReconcileTick: f.ReconcileTick,
		PollTimeout:   f.PollTimeout,
		Registry: registry.Config{
			MaxActive:    f.MaxActive,
			MissDeadline: f.MissDeadline,
			MaxMisses:    f.MaxMisses,
			EMAAlpha:     f.EMAAlpha,
			LockTimeout:  f.RegistryLockTimeout,
		},
		Placement: placement.Options{
			MaxLoadThreshold: f.MaxLoadThreshold,
			Cores:            f.Cores,
		},
		Engine: engine.Config{
			QueueCapacity:   f.QueueCapacity,
			Dispatchers:     f.Dispatchers,
			BackPressure:    f.BackPressure,
			SlowDispatch:    f.SlowDispatch,
			GraceOnShutdown: f.GraceOnShutdown,
		},
		ScaleOutWarmup: f.ScaleOutWarmup,
	}
	return cfg, f.LogLevel, nil
}

func newViper(name, path string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(strings.ToUpper(name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: read config file: %w", err)
		}
	}
	return nil
}
