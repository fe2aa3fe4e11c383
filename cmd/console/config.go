package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the workstation file for one gate console.
type Config struct {
	Site      string `yaml:"site"`
	Gate      string `yaml:"gate"`
	BusDir    string `yaml:"bus_dir"`
	Channel   string `yaml:"channel"`
	CachePath string `yaml:"cache_path"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		BusDir:  os.TempDir(),
		Channel: "parkgate-console",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.CachePath = filepath.Join(home, ".cache", "parkgate", "console.db")
	} else {
		cfg.CachePath = filepath.Join(os.TempDir(), "parkgate-console.db")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("error reading config: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %v", err)
	}
	return cfg, nil
}
