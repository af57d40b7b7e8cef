// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// serverConfig is the optional YAML server configuration (-config flag).
// LLM connection settings stay in MEMORY_LLM_* environment variables so
// credentials never land in config files.
type serverConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	Debug   bool   `yaml:"debug"`

	Reflect struct {
		MaxIterations   int  `yaml:"max_iterations"`
		ConcurrentTools bool `yaml:"concurrent_tools"`
	} `yaml:"reflect"`

	LLM struct {
		MaxRetries        int     `yaml:"max_retries"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"llm"`
}

// defaultServerConfig returns the configuration used when no file is given.
func defaultServerConfig() serverConfig {
	cfg := serverConfig{Port: 8080}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.DataDir = filepath.Join(home, ".aleutian", "memory")
	}
	return cfg
}

// loadServerConfig reads a YAML config file over the defaults. An empty
// path returns the defaults unchanged.
func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}
