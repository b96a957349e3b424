// Package local is the backend that runs inference on a supervised local
// server process. It resolves the binary and model, brings the server up on
// demand, talks to it over HTTP and unloads it after a period of inactivity.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"inferd/internal/health"
	"inferd/internal/llm"
	"inferd/internal/model"
	"inferd/internal/supervisor"
)

const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultHungAttempts   = 20
	DefaultRequestTimeout = 60 * time.Second
)

// Supervisor is the subset of *supervisor.Supervisor the client drives.
type Supervisor interface {
	Start(ctx context.Context, desc model.Descriptor) error
	Stop(timeout time.Duration) error
	MarkIdle()
	State() supervisor.ReadinessState
	Process() (supervisor.ProcessInfo, bool)
	LastError() error
}

// Options configures a Client.
type Options struct {
	// Enabled is false when the configured provider is "none".
	Enabled  bool
	Resolver *model.Resolver
	Params   model.Params

	RequestTimeout time.Duration
	// StartupTimeout overrides the size-band readiness ceiling when > 0.
	StartupTimeout time.Duration
	// IdleUnload stops the server after this much inactivity; 0 disables.
	IdleUnload  time.Duration
	KeepLoaded  bool
	StopTimeout time.Duration

	PollInterval time.Duration
	HungAttempts int

	Supervisor Supervisor
	Health     *health.Monitor
	HTTPClient *http.Client
	Notifier   llm.Notifier
	Logger     zerolog.Logger
}

// Client is the local llm.Backend.
type Client struct {
	opts   Options
	log    zerolog.Logger
	sup    Supervisor
	mon    *health.Monitor
	http   *http.Client
	notify llm.Notifier
	ensure singleflight.Group

	// ctx bounds shared startups; canceled by Close.
	ctx  context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	desc        *model.Descriptor
	unavailable error
	lastUsed    time.Time
	idleTimer   *time.Timer
	idleGen     uint64
	unloading   chan struct{}
	pending     map[string]*pendingRequest
	notified    map[string]struct{}
	closed      bool
}

var _ llm.Backend = (*Client)(nil)

// New returns a Client. Nothing is spawned until the first EnsureReady.
func New(opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HungAttempts <= 0 {
		opts.HungAttempts = DefaultHungAttempts
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = supervisor.DefaultStopTimeout
	}
	if opts.Resolver == nil {
		opts.Resolver = model.NewResolver()
	}
	log := opts.Logger.With().Str("component", "local").Logger()
	ctx, stop := context.WithCancel(context.Background())
	c := &Client{
		ctx:      ctx,
		stop:     stop,
		opts:     opts,
		log:      log,
		sup:      opts.Supervisor,
		mon:      opts.Health,
		http:     opts.HTTPClient,
		notify:   opts.Notifier,
		pending:  make(map[string]*pendingRequest),
		notified: make(map[string]struct{}),
	}
	if c.sup == nil {
		c.sup = supervisor.New(supervisor.Options{Logger: &log, StopTimeout: opts.StopTimeout})
	}
	if c.mon == nil {
		c.mon = health.NewMonitor(opts.Logger)
	}
	if c.http == nil {
		// Deadlines come from per-request contexts.
		c.http = &http.Client{Timeout: 0}
	}
	if c.notify == nil {
		c.notify = llm.NopNotifier()
	}
	return c
}

func (c *Client) Name() llm.Provider { return llm.ProviderLocal }

// IsAvailable reports whether the backend is enabled and both paths resolve.
func (c *Client) IsAvailable() bool {
	if !c.opts.Enabled || c.isClosed() {
		return false
	}
	_, ok := c.descriptor()
	return ok
}

// EnsureReady brings the server to Ready. It returns false, nil when the
// backend is disabled or the binary or model cannot be found; the reason is
// kept for Classify and Status. Concurrent callers share one attempt; a
// caller whose ctx ends stops waiting without aborting it for the others.
func (c *Client) EnsureReady(ctx context.Context) (bool, error) {
	if !c.opts.Enabled {
		c.setUnavailable(llm.ErrConfiguration(llm.ConfigDisabled, "local inference is disabled (provider none)"))
		return false, nil
	}
	if c.isClosed() {
		return false, nil
	}
	ch := c.ensure.DoChan("ensure", func() (any, error) {
		return c.ensureReady()
	})
	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		if res.Err != nil {
			c.notifyOnce(res.Err)
		}
		return ok, res.Err
	case <-ctx.Done():
		return false, &llm.ProcessStartupError{Reason: "canceled", Err: ctx.Err()}
	}
}

func (c *Client) ensureReady() (bool, error) {
	desc, ok := c.descriptor()
	if !ok {
		return false, nil
	}
	// Backstop for the whole attempt; the startup ceiling in waitReady fires first.
	bound := c.startupCeiling(desc) + time.Duration(c.opts.HungAttempts)*c.opts.PollInterval + 3*c.opts.StopTimeout
	ctx, cancel := context.WithTimeout(c.ctx, bound)
	defer cancel()

	if err := c.waitUnload(ctx); err != nil {
		return false, err
	}

	_, live := c.sup.Process()
	switch st := c.sup.State(); {
	case live && st == supervisor.StateReady:
		c.syncHealth()
		return true, nil
	case live && st == supervisor.StateLoading:
		ready, err := c.pollLoading(ctx)
		if ready || err != nil {
			return ready, err
		}
		c.log.Warn().Int("attempts", c.opts.HungAttempts).Msg("server stuck loading; restarting")
		_ = c.sup.Stop(c.opts.StopTimeout)
	}

	if err := c.sup.Start(ctx, desc); err != nil {
		return false, err
	}
	return c.waitReady(ctx, desc)
}

// pollLoading waits a bounded number of polls for a server another caller
// already started. false, nil means the server looks hung.
func (c *Client) pollLoading(ctx context.Context) (bool, error) {
	for i := 0; i < c.opts.HungAttempts; i++ {
		if err := c.fatalErr(); err != nil {
			_ = c.sup.Stop(c.opts.StopTimeout)
			return false, err
		}
		if err := sleepCtx(ctx, c.opts.PollInterval); err != nil {
			return false, &llm.ProcessStartupError{Reason: "canceled", Err: err}
		}
		if _, live := c.sup.Process(); !live {
			// Exited while loading; caller starts a fresh one.
			return false, nil
		}
		if c.sup.State() == supervisor.StateReady {
			c.syncHealth()
			return true, nil
		}
	}
	return false, nil
}

// fatalErr returns the supervisor's error when the loading server logged a
// fatal line.
func (c *Client) fatalErr() error {
	var pe *llm.ProcessStartupError
	if err := c.sup.LastError(); errors.As(err, &pe) && pe.Reason == "fatal" {
		return err
	}
	return nil
}

func (c *Client) startupCeiling(desc model.Descriptor) time.Duration {
	if c.opts.StartupTimeout > 0 {
		return c.opts.StartupTimeout
	}
	if desc.StartupTimeout > 0 {
		return desc.StartupTimeout
	}
	return desc.Band().StartupTimeout()
}

// waitUnload blocks while an idle unload is stopping the server.
func (c *Client) waitUnload(ctx context.Context) error {
	c.mu.Lock()
	ch := c.unloading
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	c.log.Debug().Msg("waiting for idle unload to finish")
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return &llm.ProcessStartupError{Reason: "canceled", Err: ctx.Err()}
	}
}

// waitReady polls until Ready, an exit, a fatal line or the startup ceiling.
func (c *Client) waitReady(ctx context.Context, desc model.Descriptor) (bool, error) {
	ceiling := c.startupCeiling(desc)
	deadline := time.Now().Add(ceiling)
	for {
		if c.sup.State() == supervisor.StateReady {
			c.syncHealth()
			c.armIdle()
			return true, nil
		}
		if _, live := c.sup.Process(); !live {
			if err := c.sup.LastError(); err != nil {
				return false, err
			}
			return false, &llm.ProcessStartupError{Reason: "exit", Err: errors.New("server exited before becoming ready")}
		}
		if err := c.fatalErr(); err != nil {
			_ = c.sup.Stop(c.opts.StopTimeout)
			return false, err
		}
		if time.Now().After(deadline) {
			_ = c.sup.Stop(c.opts.StopTimeout)
			return false, &llm.ProcessStartupError{
				Reason: "timeout",
				Err:    fmt.Errorf("server not ready after %s (%s model)", ceiling, desc.Band()),
			}
		}
		if err := sleepCtx(ctx, c.opts.PollInterval); err != nil {
			return false, &llm.ProcessStartupError{Reason: "canceled", Err: err}
		}
	}
}

// descriptor resolves paths once; failures are retried on the next call.
func (c *Client) descriptor() (model.Descriptor, bool) {
	c.mu.Lock()
	if c.desc != nil {
		d := *c.desc
		c.mu.Unlock()
		return d, true
	}
	c.mu.Unlock()

	res := c.opts.Resolver.Resolve()
	if !res.Complete() {
		var err error
		switch {
		case res.MissingBinary() && res.MissingModel():
			err = llm.ErrConfiguration(llm.ConfigNeitherFound, "neither the server binary nor a model file was found")
		case res.MissingBinary():
			err = llm.ErrConfiguration(llm.ConfigBinaryNotFound, "server binary not found; set local.binary_path or install "+model.BinaryName(c.opts.Params.ServerKind))
		default:
			err = llm.ErrConfiguration(llm.ConfigModelNotFound, "no .gguf model found; set local.model_path or local.models_dir")
		}
		c.setUnavailable(err)
		c.notifyOnce(err)
		return model.Descriptor{}, false
	}

	d := model.NewDescriptor(res.Paths, c.opts.Params)
	c.log.Info().Str("binary", d.BinaryPath).Str("binary_source", res.BinarySource).
		Str("model", d.ModelPath).Str("model_source", res.ModelSource).
		Str("band", d.Band().String()).Int("gpu_layers", d.GPULayers).
		Dur("startup_timeout", d.StartupTimeout).Msg("resolved local server")
	c.mu.Lock()
	c.desc = &d
	c.unavailable = nil
	c.mu.Unlock()
	return d, true
}

func (c *Client) setUnavailable(err error) {
	c.mu.Lock()
	c.unavailable = err
	c.mu.Unlock()
}

// unavailableErr is the ConfigurationError explaining why EnsureReady
// returned false.
func (c *Client) unavailableErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable != nil {
		return c.unavailable
	}
	if c.closed {
		return llm.ErrConfiguration(llm.ConfigDisabled, "local client is closed")
	}
	return llm.ErrConfiguration(llm.ConfigNeitherFound, "local server is not configured")
}

// Classify categorises text with the local model. Unusable model output
// yields the zero classification.
func (c *Client) Classify(ctx context.Context, text string) (llm.Classification, error) {
	raw, err := c.complete(ctx, "classify", llm.ClassificationPrompt(text), llm.ClassificationOptions(true))
	if err != nil {
		return llm.EmptyClassification(), err
	}
	cls, perr := llm.ParseClassification(raw)
	if perr != nil {
		c.log.Debug().Err(perr).Msg("classification output unusable; returning empty result")
		return llm.EmptyClassification(), nil
	}
	return cls, nil
}

// Complete returns the raw completion for prompt.
func (c *Client) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	return c.complete(ctx, "complete", prompt, opts)
}

// Status is a diagnostic snapshot of the local backend.
type Status struct {
	Enabled     bool                      `json:"enabled"`
	State       supervisor.ReadinessState `json:"state"`
	Binary      string                    `json:"binary,omitempty"`
	Model       string                    `json:"model,omitempty"`
	Band        string                    `json:"band,omitempty"`
	GPULayers   int                       `json:"gpu_layers,omitempty"`
	URL         string                    `json:"url,omitempty"`
	Health      health.Report             `json:"health"`
	LastUsed    time.Time                 `json:"last_used,omitempty"`
	InFlight    int                       `json:"in_flight"`
	LastError   string                    `json:"last_error,omitempty"`
	Unavailable string                    `json:"unavailable,omitempty"`
}

// Status returns the current state without side effects on the process.
func (c *Client) Status() Status {
	c.syncHealth()
	st := Status{Enabled: c.opts.Enabled, State: c.sup.State(), Health: c.mon.Health()}
	if err := c.sup.LastError(); err != nil {
		st.LastError = err.Error()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc != nil {
		st.Binary, st.Model = c.desc.BinaryPath, c.desc.ModelPath
		st.Band, st.GPULayers = c.desc.Band().String(), c.desc.GPULayers
		st.URL = c.desc.ServerURL()
	}
	if c.unavailable != nil {
		st.Unavailable = c.unavailable.Error()
	}
	st.LastUsed = c.lastUsed
	st.InFlight = len(c.pending)
	return st
}

// Close cancels pending requests, disarms the idle timer and stops the
// server. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stop()
	c.idleGen++
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	for _, p := range c.pending {
		p.cancel()
	}
	c.mu.Unlock()

	err := c.sup.Stop(c.opts.StopTimeout)
	c.mon.Detach()
	c.log.Info().Msg("local client closed")
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// syncHealth points the health monitor at the live process, if any.
func (c *Client) syncHealth() {
	if info, live := c.sup.Process(); live {
		c.mon.Attach(info.PID, info.StartedAt)
		return
	}
	c.mon.Detach()
}

// notifyOnce forwards actionable errors to the host, once per message.
func (c *Client) notifyOnce(err error) {
	if !llm.IsConfiguration(err) && !llm.IsProcessStartup(err) {
		return
	}
	var pe *llm.ProcessStartupError
	if errors.As(err, &pe) && pe.Reason == "canceled" {
		return
	}
	msg := "Local inference: " + err.Error()
	c.mu.Lock()
	_, seen := c.notified[msg]
	c.notified[msg] = struct{}{}
	c.mu.Unlock()
	if !seen {
		c.notify.Notify(msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
