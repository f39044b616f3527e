// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package probe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BridgeConfig describes a module wired behind an I2C or SPI bridge.
// Bridges cannot be enumerated like USB ports, so they are configured in
// a JSON file or in the environment.
type BridgeConfig struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	// Device is the bus path, "/dev/i2c-1:0x48" or "/dev/spidev0.0".
	Device string `json:"device"`
	Name   string `json:"name,omitempty"`
	// BaudRate is the UART speed between bridge and module; zero keeps
	// the transport default.
	BaudRate int `json:"baud_rate,omitempty"`
	// Configured is set for entries from a file or the environment, as
	// opposed to device nodes found by globbing.
	Configured bool `json:"-"`
}

// configDirs returns the directories searched for <kind>.json.
func configDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "ucx"))
	}
	return append(dirs, "/etc/ucx")
}

// LoadBridgeConfigs reads bridge entries for kind ("i2c" or "spi") from
// the first config file found and from UCX_<KIND>_DEVICE and
// UCX_<KIND>_BAUD. The file may hold one object or an array.
func LoadBridgeConfigs(kind string) []BridgeConfig {
	var configs []BridgeConfig
	for _, dir := range configDirs() {
		names := []string{kind + ".json"}
		if dir == "." {
			names = []string{"ucx-" + kind + ".json", ".ucx-" + kind + ".json"}
		}
		for _, name := range names {
			loaded, err := readBridgeFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			configs = append(configs, loaded...)
			return appendEnvConfig(configs, kind)
		}
	}
	return appendEnvConfig(configs, kind)
}

func readBridgeFile(path string) ([]BridgeConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // fixed config locations
	if err != nil {
		return nil, err
	}

	var configs []BridgeConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		var single BridgeConfig
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("invalid bridge config %s: %w", path, err)
		}
		configs = []BridgeConfig{single}
	}
	for i := range configs {
		configs[i].Configured = true
	}
	return configs, nil
}

func appendEnvConfig(configs []BridgeConfig, kind string) []BridgeConfig {
	prefix := "UCX_" + strings.ToUpper(kind)
	device := os.Getenv(prefix + "_DEVICE")
	if device == "" {
		return configs
	}
	cfg := BridgeConfig{Device: device, Name: strings.ToUpper(kind) + " bridge from environment", Configured: true}
	if baud, err := strconv.Atoi(os.Getenv(prefix + "_BAUD")); err == nil && baud > 0 {
		cfg.BaudRate = baud
	}
	return append(configs, cfg)
}

// DedupeBridgeConfigs keeps the first entry for each device path.
func DedupeBridgeConfigs(configs []BridgeConfig) []BridgeConfig {
	seen := make(map[string]bool, len(configs))
	var unique []BridgeConfig
	for _, cfg := range configs {
		if cfg.Device == "" || seen[cfg.Device] {
			continue
		}
		seen[cfg.Device] = true
		unique = append(unique, cfg)
	}
	return unique
}
