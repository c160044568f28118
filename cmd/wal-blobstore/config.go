package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// storeConfig names one backend directory/file behind a blobstore id.
type storeConfig struct {
	ID   int16  `yaml:"id"`
	Kind string `yaml:"kind"` // "file" or "bolt"
	Path string `yaml:"path"`
}

// bootstrapConfig is the single YAML file the harness reads to wire a
// multiplex.Store and a bookmarks.Cache: which backend stores exist, which
// are write-only, the write quorum, the WAL directory, and the bookmarks
// database path. This is one-shot wiring read once at startup, not a
// layered configuration pipeline.
type bootstrapConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	MultiplexID     int32         `yaml:"multiplex_id"`
	WriteQuorum     int           `yaml:"write_quorum"`
	MainStores      []storeConfig `yaml:"main_stores"`
	WriteOnlyStores []storeConfig `yaml:"write_only_stores"`
	WALDir          string        `yaml:"wal_dir"`
	BookmarksDBPath string        `yaml:"bookmarks_db_path"`
	BookmarksTTLSec int           `yaml:"bookmarks_ttl_seconds"`
	LogLevel        string        `yaml:"log_level"`
	LogJSON         bool          `yaml:"log_json"`
}

func loadConfig(path string) (*bootstrapConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg bootstrapConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.MainStores) == 0 {
		return nil, fmt.Errorf("config: at least one main store required")
	}
	if cfg.WriteQuorum < 1 || cfg.WriteQuorum > len(cfg.MainStores) {
		return nil, fmt.Errorf("config: write_quorum %d out of range [1,%d]", cfg.WriteQuorum, len(cfg.MainStores))
	}
	if cfg.BookmarksTTLSec <= 0 {
		cfg.BookmarksTTLSec = 30
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	return &cfg, nil
}
