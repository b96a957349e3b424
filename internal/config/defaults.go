package config

import "time"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:       ProviderLocal,
		RequestTimeout: Duration(60 * time.Second),
		IdleUnload:     Duration(30 * time.Minute),
		Local: LocalConfig{
			ServerKind:  "llama.cpp",
			ModelsDir:   "~/models",
			InstallDir:  "~/.local/share/inferd",
			Host:        "127.0.0.1",
			Port:        8089,
			CtxSize:     4096,
			Parallel:    1,
			StartGrace:  Duration(2 * time.Second),
			StopTimeout: Duration(5 * time.Second),
		},
		Cloud: CloudConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8765",
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
