// Package config loads the YAML configuration that parameterizes a buffer
// pool instance: frame count, LRU-K's k, page size, and where the disk
// manager's backing file lives.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tqhuy/pagestore/internal/storage"
)

// Config mirrors the on-disk YAML shape via mapstructure tags, the same
// pattern the rest of the pack's config loaders use.
type Config struct {
	Buffer struct {
		NumFrames int `mapstructure:"num_frames"`
		K         int `mapstructure:"k"`
	} `mapstructure:"buffer"`
	Storage struct {
		PageSize int    `mapstructure:"page_size"`
		DiskPath string `mapstructure:"disk_path"`
	} `mapstructure:"storage"`
	Log struct {
		Enabled bool   `mapstructure:"enabled"`
		Dir     string `mapstructure:"dir"`
	} `mapstructure:"log"`
	Server struct {
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
}

// Default returns the configuration used when no config file is supplied:
// 64 frames, k=2, 4KiB pages, a local data file, logging off.
func Default() *Config {
	var c Config
	c.Buffer.NumFrames = 64
	c.Buffer.K = 2
	c.Storage.PageSize = storage.DefaultPageSize
	c.Storage.DiskPath = "pagestore.db"
	c.Log.Enabled = false
	c.Log.Dir = "pagestore-log"
	return &c
}

// Load reads path (YAML) and overlays it onto Default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("buffer.num_frames", cfg.Buffer.NumFrames)
	v.SetDefault("buffer.k", cfg.Buffer.K)
	v.SetDefault("storage.page_size", cfg.Storage.PageSize)
	v.SetDefault("storage.disk_path", cfg.Storage.DiskPath)
	v.SetDefault("log.enabled", cfg.Log.Enabled)
	v.SetDefault("log.dir", cfg.Log.Dir)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}
