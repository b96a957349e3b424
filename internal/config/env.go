package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INFERD_"

// ApplyEnv overrides fields from INFERD_* variables read through getenv
// (os.Getenv in production). Unset or empty variables leave the field alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v := getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *Duration) {
		if v := getenv(EnvPrefix + name); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			}
		}
	}

	str("PROVIDER", &c.Provider)
	boolean("PREFER_CLOUD", &c.PreferCloud)
	duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	duration("IDLE_UNLOAD", &c.IdleUnload)
	boolean("KEEP_LOADED", &c.KeepLoaded)

	str("SERVER_KIND", &c.Local.ServerKind)
	str("BINARY_PATH", &c.Local.BinaryPath)
	str("MODEL_PATH", &c.Local.ModelPath)
	str("MODEL_NAME", &c.Local.ModelName)
	str("MODELS_DIR", &c.Local.ModelsDir)
	str("INSTALL_DIR", &c.Local.InstallDir)
	integer("LOCAL_PORT", &c.Local.Port)
	integer("GPU_LAYERS", &c.Local.GPULayers)
	duration("STARTUP_TIMEOUT", &c.Local.StartupTimeout)

	str("CLOUD_BASE_URL", &c.Cloud.BaseURL)
	str("CLOUD_API_KEY", &c.Cloud.APIKey)
	str("CLOUD_MODEL", &c.Cloud.Model)

	str("HTTP_ADDR", &c.HTTP.Addr)
	if v := getenv(EnvPrefix + "CORS_ORIGINS"); v != "" {
		c.HTTP.CORSEnabled = true
		c.HTTP.CORSAllowedOrigins = splitList(v)
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
