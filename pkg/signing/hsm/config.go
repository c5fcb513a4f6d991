// Copyright 2025 The Secure Systems Lab Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hsm

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ConfigFromEnv.
const (
	// ModuleEnv names the PKCS#11 driver library to load.
	ModuleEnv = "HSM_MODULE"
	// TokenLabelEnv selects the token by label; empty selects the first
	// slot with a token present.
	TokenLabelEnv = "HSM_TOKEN_LABEL"
	// DefaultKeyIDEnv is the hex object id used when a signer URI omits one.
	DefaultKeyIDEnv = "HSM_DEFAULT_KEY_ID"
	// ConfigEnv names an optional YAML config file; explicit environment
	// variables override its values.
	ConfigEnv = "HSM_CONFIG"
)

// Config describes how to reach the token holding the signing keys.
//
// An unresolvable driver module is a fatal configuration error surfaced at
// session-open time; it is never retried.
type Config struct {
	// Module is the path to the native PKCS#11 driver library (.so).
	// When empty, well-known SoftHSM install locations are searched.
	Module string `yaml:"module"`
	// TokenLabel selects the token by label. Empty means the first slot
	// with a token present.
	TokenLabel string `yaml:"token"`
	// DefaultKeyID is the hex-encoded CKA_ID used when a signer URI does
	// not name an object id.
	DefaultKeyID string `yaml:"defaultKeyID"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read HSM config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse HSM config %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigFromEnv assembles a Config from the environment, layering explicit
// variables over an optional YAML file named by HSM_CONFIG.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if path := os.Getenv(ConfigEnv); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if v := os.Getenv(ModuleEnv); v != "" {
		cfg.Module = v
	}
	if v := os.Getenv(TokenLabelEnv); v != "" {
		cfg.TokenLabel = v
	}
	if v := os.Getenv(DefaultKeyIDEnv); v != "" {
		cfg.DefaultKeyID = v
	}
	return cfg, nil
}

// defaultKeyID decodes the configured default object id.
func (c Config) defaultKeyID() ([]byte, error) {
	if c.DefaultKeyID == "" {
		return nil, fmt.Errorf("no object id in URI and no default configured")
	}
	id, err := hex.DecodeString(c.DefaultKeyID)
	if err != nil {
		return nil, fmt.Errorf("default object id %q is not valid hex: %w", c.DefaultKeyID, err)
	}
	return id, nil
}

// resolveModule returns the driver library path, searching well-known
// locations when none is configured.
func (c Config) resolveModule() (string, error) {
	if c.Module != "" {
		if _, err := os.Stat(c.Module); err != nil {
			return "", fmt.Errorf("PKCS#11 module %s is not usable: %w", c.Module, err)
		}
		return c.Module, nil
	}

	// Default install locations for SoftHSM2 across distributions,
	// matching where packaged builds place the library.
	candidates := []string{
		"/usr/lib64/pkcs11/libsofthsm2.so",
		"/usr/lib/pkcs11/libsofthsm2.so",
		"/usr/lib/x86_64-linux-gnu/softhsm/libsofthsm2.so",
		"/usr/lib/softhsm/libsofthsm2.so",
		"/usr/lib64/softhsm/libsofthsm2.so",
		"/usr/local/lib/softhsm/libsofthsm2.so",
		"/opt/homebrew/lib/softhsm/libsofthsm2.so",
		"/usr/local/Cellar/softhsm/*/lib/softhsm/libsofthsm2.so",
	}
	for _, path := range candidates {
		if strings.Contains(path, "*") {
			if matches, err := filepath.Glob(path); err == nil && len(matches) > 0 {
				return matches[0], nil
			}
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no PKCS#11 module configured and none found in standard locations (set %s)", ModuleEnv)
}
