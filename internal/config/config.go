// Package config loads pool connection settings from the environment and an
// optional .env-style file, the minimal collaborator spec §6 calls for.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PoolConfig is everything needed to dial and authenticate against a
// Stratum v1 pool.
type PoolConfig struct {
	URL       string
	Username  string
	Password  string
	UserAgent string
}

// Config is the fully resolved daemon configuration.
type Config struct {
	Pool    PoolConfig
	APIAddr string // host:port the HTTP API listens on
}

const defaultUserAgent = "mujina/0.1"
const defaultAPIAddr = "127.0.0.1:7785"

var (
	loaded   *Config
	loadedOK bool
)

// Load resolves Config from (in increasing precedence) a .env file found by
// walking up from the working directory, then process environment
// variables. Results are cached: repeated calls return the first load.
func Load() (*Config, error) {
	if loaded != nil && loadedOK {
		return loaded, nil
	}

	cfg := &Config{
		Pool:    PoolConfig{UserAgent: defaultUserAgent},
		APIAddr: defaultAPIAddr,
	}

	if data, err := os.ReadFile(filepath.Join(findProjectRoot(), ".env")); err == nil {
		parseEnvFile(string(data), cfg)
	}
	applyEnv(cfg)

	if cfg.Pool.URL == "" {
		return nil, fmt.Errorf("config: MUJINA_POOL_URL is required")
	}
	if cfg.Pool.Username == "" {
		return nil, fmt.Errorf("config: MUJINA_POOL_USERNAME is required")
	}

	loaded = cfg
	loadedOK = true
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MUJINA_POOL_URL"); v != "" {
		cfg.Pool.URL = v
	}
	if v := os.Getenv("MUJINA_POOL_USERNAME"); v != "" {
		cfg.Pool.Username = v
	}
	if v := os.Getenv("MUJINA_POOL_PASSWORD"); v != "" {
		cfg.Pool.Password = v
	}
	if v := os.Getenv("MUJINA_POOL_USER_AGENT"); v != "" {
		cfg.Pool.UserAgent = v
	}
	if v := os.Getenv("MUJINA_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
}

func parseEnvFile(content string, cfg *Config) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		switch key {
		case "MUJINA_POOL_URL":
			cfg.Pool.URL = value
		case "MUJINA_POOL_USERNAME":
			cfg.Pool.Username = value
		case "MUJINA_POOL_PASSWORD":
			cfg.Pool.Password = value
		case "MUJINA_POOL_USER_AGENT":
			cfg.Pool.UserAgent = value
		case "MUJINA_API_ADDR":
			cfg.APIAddr = value
		}
	}
}

func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// APIURL reads MUJINA_API_URL for the CLI, defaulting to the loopback
// address the daemon listens on by default.
func APIURL() string {
	if v := os.Getenv("MUJINA_API_URL"); v != "" {
		return v
	}
	return "http://127.0.0.1:7785"
}

// ParseAddr splits a host:port address into its gin-compatible listen form,
// validating the port is numeric.
func ParseAddr(addr string) (string, error) {
	_, portStr, err := splitHostPort(addr)
	if err != nil {
		return "", err
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return "", fmt.Errorf("config: invalid port in %q: %w", addr, err)
	}
	return addr, nil
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("config: address %q missing port", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}
