// Copyright 2025 The Switchboard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and persists the switchboard server-configuration
// file: the durable map of tool server name to connection settings, plus
// orchestration defaults and the approval policy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/switchboard-dev/switchboard/internal/invoke"
	"github.com/switchboard-dev/switchboard/internal/mcp"
)

// Defaults are orchestration-wide settings applied to every server unless
// the server's own entry overrides them.
type Defaults struct {
	// Timeout is the default per-tool-call timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// PollInterval is how often availability is re-checked.
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
}

// FileConfig is the on-disk configuration.
type FileConfig struct {
	// Servers maps server name to connection settings.
	Servers map[string]mcp.ServerConfig `yaml:"servers"`

	// Defaults apply to servers that do not set their own values.
	Defaults Defaults `yaml:"defaults,omitempty"`

	// Approval is the tool-call approval policy.
	Approval invoke.Policy `yaml:"approval,omitempty"`
}

// Load reads, parses, defaults, and validates a configuration file.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration atomically: a temp file in the same
// directory followed by a rename, so a crash mid-write never leaves a
// truncated config behind.
func Save(path string, cfg *FileConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".servers-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	return nil
}

// applyDefaults copies unset per-server values from the defaults block.
func (c *FileConfig) applyDefaults() {
	if c.Defaults.Timeout == 0 {
		return
	}
	for name, server := range c.Servers {
		if server.Timeout == 0 {
			server.Timeout = c.Defaults.Timeout
			c.Servers[name] = server
		}
	}
}

// Validate checks every server entry. The first violation is returned.
func (c *FileConfig) Validate() error {
	for name, server := range c.Servers {
		if err := server.Validate(name); err != nil {
			return err
		}
	}
	if c.Defaults.Timeout < 0 {
		return fmt.Errorf("defaults: timeout must not be negative")
	}
	if c.Defaults.PollInterval < 0 {
		return fmt.Errorf("defaults: pollInterval must not be negative")
	}
	return nil
}
