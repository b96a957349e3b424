package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inferd/internal/httpapi"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	var warm bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.HTTP.Addr = addr
			}
			return c.serve(warm)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&warm, "warm", false, "Start the local server immediately instead of on first request")
	return cmd
}

func (c *cli) serve(warm bool) error {
	a, err := c.newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(c.log)
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetMaxBodyBytes(c.cfg.HTTP.MaxBodyBytes)
	httpapi.SetHandlerTimeout(c.cfg.HTTP.HandlerTimeout.D())
	httpapi.SetCORSOptions(c.cfg.HTTP.CORSEnabled, c.cfg.HTTP.CORSAllowedOrigins, nil, nil)
	httpapi.SetRequestLogLevel(c.cfg.Log.Level)

	srv := &http.Server{
		Addr:              c.cfg.HTTP.Addr,
		Handler:           httpapi.NewMux(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		c.log.Info().Str("addr", c.cfg.HTTP.Addr).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if warm {
		go func() {
			if _, err := a.Warmup(baseCtx); err != nil {
				c.log.Warn().Err(err).Msg("warmup failed")
			}
		}()
	}

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-stop:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		c.log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
