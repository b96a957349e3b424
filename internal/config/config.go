// Package config loads inferd's configuration from YAML, JSON or TOML files,
// applies INFERD_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Provider values.
const (
	ProviderNone  = "none"
	ProviderLocal = "local"
	ProviderCloud = "cloud"
)

// Config is the full runtime configuration. Start from Default(); files and
// the environment only override what they mention.
type Config struct {
	Provider       string   `json:"provider" yaml:"provider" toml:"provider"`
	PreferCloud    bool     `json:"prefer_cloud" yaml:"prefer_cloud" toml:"prefer_cloud"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	IdleUnload     Duration `json:"idle_unload" yaml:"idle_unload" toml:"idle_unload"`
	KeepLoaded     bool     `json:"keep_loaded" yaml:"keep_loaded" toml:"keep_loaded"`

	Local LocalConfig `json:"local" yaml:"local" toml:"local"`
	Cloud CloudConfig `json:"cloud" yaml:"cloud" toml:"cloud"`
	HTTP  HTTPConfig  `json:"http" yaml:"http" toml:"http"`
	Log   LogConfig   `json:"log" yaml:"log" toml:"log"`
}

// LocalConfig describes the supervised server.
type LocalConfig struct {
	ServerKind     string   `json:"server_kind" yaml:"server_kind" toml:"server_kind"`
	BinaryPath     string   `json:"binary_path" yaml:"binary_path" toml:"binary_path"`
	ModelPath      string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelName      string   `json:"model_name" yaml:"model_name" toml:"model_name"`
	ModelsDir      string   `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	InstallDir     string   `json:"install_dir" yaml:"install_dir" toml:"install_dir"`
	Host           string   `json:"host" yaml:"host" toml:"host"`
	Port           int      `json:"port" yaml:"port" toml:"port"`
	CtxSize        int      `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Parallel       int      `json:"parallel" yaml:"parallel" toml:"parallel"`
	GPULayers      int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	StartGrace     Duration `json:"start_grace" yaml:"start_grace" toml:"start_grace"`
	StartupTimeout Duration `json:"startup_timeout" yaml:"startup_timeout" toml:"startup_timeout"`
	StopTimeout    Duration `json:"stop_timeout" yaml:"stop_timeout" toml:"stop_timeout"`
	ExtraArgs      []string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
}

// CloudConfig is an OpenAI-compatible endpoint.
type CloudConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model   string `json:"model" yaml:"model" toml:"model"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	// HandlerTimeout bounds a whole API request including warmup; 0 disables.
	HandlerTimeout     Duration `json:"handler_timeout" yaml:"handler_timeout" toml:"handler_timeout"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// LogConfig configures zerolog output. An empty File logs to stderr.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Format     string `json:"format" yaml:"format" toml:"format"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
}

// LocalEnabled reports whether the local backend may spawn a server.
func (c Config) LocalEnabled() bool { return c.Provider != ProviderNone }

// CloudPreferred reports whether requests try the cloud backend first.
func (c Config) CloudPreferred() bool { return c.PreferCloud || c.Provider == ProviderCloud }

var serverKinds = map[string]bool{"llama.cpp": true, "llamafile": true}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Provider {
	case ProviderNone, ProviderLocal, ProviderCloud:
	default:
		bad("provider: %q is not one of none, local, cloud", c.Provider)
	}
	if c.RequestTimeout.D() <= 0 {
		bad("request_timeout: must be positive")
	}
	if c.IdleUnload.D() < 0 {
		bad("idle_unload: must not be negative")
	}
	if c.HTTP.HandlerTimeout.D() < 0 {
		bad("http.handler_timeout: must not be negative")
	}
	if !serverKinds[strings.ToLower(c.Local.ServerKind)] {
		bad("local.server_kind: %q is not one of llama.cpp, llamafile", c.Local.ServerKind)
	}
	if c.Local.Port < 1 || c.Local.Port > 65535 {
		bad("local.port: %d out of range", c.Local.Port)
	}
	if c.Local.CtxSize < 0 {
		bad("local.ctx_size: must not be negative")
	}
	if c.Local.Parallel < 1 {
		bad("local.parallel: must be at least 1")
	}
	if c.Local.GPULayers < 0 {
		bad("local.gpu_layers: must not be negative")
	}
	for name, d := range map[string]Duration{
		"local.start_grace":     c.Local.StartGrace,
		"local.startup_timeout": c.Local.StartupTimeout,
		"local.stop_timeout":    c.Local.StopTimeout,
	} {
		if d.D() < 0 {
			bad("%s: must not be negative", name)
		}
	}
	if c.Provider == ProviderCloud && strings.TrimSpace(c.Cloud.BaseURL) == "" {
		bad("cloud.base_url: required when provider is cloud")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		bad("http.addr: required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		bad("log.level: %v", err)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		bad("log.format: %q is not one of console, json", c.Log.Format)
	}
	return errors.Join(errs...)
}
