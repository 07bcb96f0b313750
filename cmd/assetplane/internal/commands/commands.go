package commands

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

type Globals struct {
	Debug   bool
	Version string
}

// Flag defaults, shared between the kong tag interpolation in Vars and the
// config-file merge in applyFileConfig so the two can never drift apart.
const (
	defaultListen               = "localhost:8080"
	defaultFanOutLimit          = 8
	defaultTenantTimeoutSeconds = 10
)

// Vars supplies the interpolated tag defaults to kong.Parse.
func Vars() kong.Vars {
	return kong.Vars{
		"default_listen":         defaultListen,
		"default_fan_out_limit":  strconv.Itoa(defaultFanOutLimit),
		"default_tenant_timeout": strconv.Itoa(defaultTenantTimeoutSeconds),
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// fileConfig is the optional YAML config file. Command-line flags override
// any value set here.
type fileConfig struct {
	Listen               string `yaml:"listen"`
	DatabaseURL          string `yaml:"database_url"`
	ServiceRole          string `yaml:"service_role"`
	FanOutLimit          int    `yaml:"fan_out_limit"`
	TenantTimeoutSeconds int    `yaml:"tenant_timeout_seconds"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}
