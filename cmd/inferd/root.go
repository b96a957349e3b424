package main

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/app"
	"inferd/internal/config"
	"inferd/internal/logging"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	envFile    string
	logLevel   string

	cfg    config.Config
	log    zerolog.Logger
	closer io.Closer
	getenv func(string) string
}

func newRootCmd() *cobra.Command {
	c := &cli{getenv: os.Getenv}
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Local llama.cpp supervisor with cloud fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.closer != nil {
				return c.closer.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Dotenv file with INFERD_* variables; ignored when missing")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override: debug|info|warn|error")

	root.AddCommand(
		newServeCmd(c),
		newClassifyCmd(c),
		newCompleteCmd(c),
		newIdeasCmd(c),
		newWarmupCmd(c),
		newStatusCmd(c),
	)
	return root
}

// setup loads .env, the config file and INFERD_* overrides, then builds the
// logger.
func (c *cli) setup() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	cfg, err := config.LoadOptional(c.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(c.getenv); err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg
	c.log, c.closer, err = logging.New(cfg.Log)
	return err
}

func (c *cli) newApp() (*app.App, error) {
	return app.New(c.cfg, app.Options{Logger: c.log, LookPath: true})
}
