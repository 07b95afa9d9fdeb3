// Package config resolves service settings from the environment, optionally
// layered over a JSON/YAML/TOML file named by CONFIG_FILE. Environment
// variables always win over file values.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	mu sync.RWMutex
	v  = newViper()
)

func newViper() *viper.Viper {
	vp := viper.New()
	vp.AutomaticEnv()
	return vp
}

// Load reads path into the lookup chain. An empty path is a no-op so services
// can call Load(String("CONFIG_FILE", "")) unconditionally.
func Load(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Reset drops any loaded file. Used by tests.
func Reset() {
	mu.Lock()
	v = newViper()
	mu.Unlock()
}

func lookup(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return strings.TrimSpace(v.GetString(key))
}

func String(key, fallback string) string {
	if s := lookup(key); s != "" {
		return s
	}
	return fallback
}

func RequiredString(key string) (string, error) {
	s := lookup(key)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func Port(key, fallback string) (string, error) {
	s := String(key, fallback)
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, s)
	}
	return s, nil
}

func Int(key string, fallback int) (int, error) {
	s := lookup(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, s)
	}
	return n, nil
}

func Float(key string, fallback float64) (float64, error) {
	s := lookup(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number (got %q)", key, s)
	}
	return f, nil
}

func Duration(key string, fallback time.Duration) (time.Duration, error) {
	s := lookup(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (got %q)", key, s)
	}
	return d, nil
}

// Bool treats 1/true/yes/y/on as true, case-insensitively.
func Bool(key string, fallback bool) bool {
	s := lookup(key)
	if s == "" {
		return fallback
	}
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// List splits a comma separated value, dropping blanks.
func List(key string) []string {
	s := lookup(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
