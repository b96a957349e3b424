// Package app owns the lifetime of every runtime component: it builds them
// from a config.Config in New and tears them down in Close.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/cloud"
	"inferd/internal/config"
	"inferd/internal/health"
	"inferd/internal/llm"
	"inferd/internal/local"
	"inferd/internal/model"
	"inferd/internal/router"
	"inferd/internal/supervisor"
	"inferd/pkg/types"
)

const (
	healthInterval = 15 * time.Second
	eventBacklog   = 32
)

// Options are collaborators supplied by the host.
type Options struct {
	Logger   zerolog.Logger
	Notifier llm.Notifier
	// LookPath lets the default-install strategy find the server on $PATH.
	LookPath bool
}

// App is the assembled service.
type App struct {
	cfg     config.Config
	log     zerolog.Logger
	started time.Time

	events *supervisor.MemoryPublisher
	sup    *supervisor.Supervisor
	mon    *health.Monitor
	local  *local.Client
	cloud  *cloud.Client
	router *router.Router

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New validates cfg and wires the components. Nothing is spawned until the
// first request or warmup.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := opts.Logger
	notifier := opts.Notifier
	if notifier == nil {
		notifier = llm.NotifierFunc(func(msg string) {
			log.Warn().Str("event", "notify").Msg(msg)
		})
	}

	a := &App{cfg: cfg, log: log, started: time.Now(), events: supervisor.NewMemoryPublisher(eventBacklog)}
	a.sup = supervisor.New(supervisor.Options{
		StartGrace:  cfg.Local.StartGrace.D(),
		StopTimeout: cfg.Local.StopTimeout.D(),
		Logger:      &log,
		Publisher:   a.events,
	})
	a.mon = health.NewMonitor(log)
	a.local = local.New(local.Options{
		Enabled:  cfg.LocalEnabled(),
		Resolver: Resolver(cfg.Local, opts.LookPath),
		Params: model.Params{
			ServerKind: cfg.Local.ServerKind,
			Host:       cfg.Local.Host,
			Port:       cfg.Local.Port,
			CtxSize:    cfg.Local.CtxSize,
			Parallel:   cfg.Local.Parallel,
			GPULayers:  cfg.Local.GPULayers,
			ExtraArgs:  cfg.Local.ExtraArgs,
		},
		RequestTimeout: cfg.RequestTimeout.D(),
		StartupTimeout: cfg.Local.StartupTimeout.D(),
		IdleUnload:     cfg.IdleUnload.D(),
		KeepLoaded:     cfg.KeepLoaded,
		StopTimeout:    cfg.Local.StopTimeout.D(),
		Supervisor:     a.sup,
		Health:         a.mon,
		Notifier:       notifier,
		Logger:         log,
	})
	a.cloud = cloud.New(cloud.Options{
		BaseURL:        cfg.Cloud.BaseURL,
		APIKey:         cfg.Cloud.APIKey,
		Model:          cfg.Cloud.Model,
		RequestTimeout: cfg.RequestTimeout.D(),
		Logger:         log,
	})
	a.router = router.New(router.Options{
		Local:       a.local,
		Cloud:       a.cloud,
		PreferCloud: cfg.CloudPreferred(),
		Logger:      log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.mon.Run(ctx, healthInterval)
	}()

	log.Info().Str("provider", cfg.Provider).Str("preference", string(a.router.Preference())).
		Bool("cloud_available", a.cloud.IsAvailable()).Msg("inferd initialised")
	return a, nil
}

// Resolver builds the ordered path-resolution strategies for cfg.
func Resolver(cfg config.LocalConfig, lookPath bool) *model.Resolver {
	return model.NewResolver(
		model.ExplicitStrategy{Binary: cfg.BinaryPath, Model: cfg.ModelPath},
		model.DefaultInstallStrategy{Dir: cfg.InstallDir, BinaryName: model.BinaryName(cfg.ServerKind), LookPath: lookPath},
		model.ScanStrategy{Dir: cfg.ModelsDir, Preferred: cfg.ModelName},
	)
}

// Router exposes the hybrid router for in-process callers such as the CLI.
func (a *App) Router() *router.Router { return a.router }

// Close stops the local server and background sampling. Safe to call twice.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.local.Close()
		a.cancel()
		a.wg.Wait()
	})
	return err
}

// Ready reports whether any backend can serve a request right now.
func (a *App) Ready() bool {
	if a.sup.State() == supervisor.StateReady {
		return true
	}
	return a.cloud.IsAvailable()
}

// Status is the /status snapshot.
func (a *App) Status() types.StatusResponse {
	ls := a.local.Status()
	st := types.StatusResponse{
		Provider:       a.cfg.Provider,
		Preference:     string(a.router.Preference()),
		LastProvider:   string(a.router.LastProvider()),
		CloudAvailable: a.cloud.IsAvailable(),
		Local: types.LocalStatus{
			Enabled:   ls.Enabled,
			State:     string(ls.State),
			Binary:    ls.Binary,
			Model:     ls.Model,
			Band:      ls.Band,
			GPULayers: ls.GPULayers,
			URL:       ls.URL,
			Health: types.HealthReport{
				IsRunning:     ls.Health.IsRunning,
				PID:           ls.Health.PID,
				MemoryMB:      ls.Health.MemoryMB,
				UptimeSeconds: ls.Health.UptimeSeconds,
			},
			InFlight:    ls.InFlight,
			LastError:   ls.LastError,
			Unavailable: ls.Unavailable,
		},
		Events:         []types.Event{},
		UptimeSeconds:  int64(time.Since(a.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	if !ls.LastUsed.IsZero() {
		st.Local.LastUsedUnix = ls.LastUsed.Unix()
	}
	for _, e := range a.events.Events() {
		st.Events = append(st.Events, types.Event{Name: e.Name, PID: e.PID, Model: e.Model, Fields: e.Fields})
	}
	return st
}

// Warmup brings a backend up ahead of the first request.
func (a *App) Warmup(ctx context.Context) (types.WarmupResponse, error) {
	ok, err := a.router.EnsureReady(ctx)
	resp := types.WarmupResponse{Ready: ok, LocalState: string(a.sup.State())}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, err
}

// Classify runs classification through the router.
func (a *App) Classify(ctx context.Context, req types.ClassifyRequest) (types.ClassifyResponse, error) {
	cls, p, err := a.router.ClassifyFrom(ctx, req.Text)
	if err != nil {
		return types.ClassifyResponse{}, err
	}
	return types.ClassifyResponse{Category: cls.Category, Tags: cls.Tags, Confidence: cls.Confidence, Provider: string(p)}, nil
}

// Complete returns raw completion text.
func (a *App) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResponse, error) {
	out, p, err := a.router.CompleteFrom(ctx, req.Prompt, llm.CompletionOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	})
	if err != nil {
		return types.CompleteResponse{}, err
	}
	return types.CompleteResponse{Content: out, Provider: string(p)}, nil
}

// Mutations generates variations of an idea.
func (a *App) Mutations(ctx context.Context, req types.MutationsRequest) (types.MutationsResponse, error) {
	ms, err := a.router.GenerateMutations(ctx, req.Idea, router.MutationOptions{Count: req.Count, Focus: req.Focus})
	if err != nil {
		return types.MutationsResponse{}, err
	}
	resp := types.MutationsResponse{Mutations: make([]types.Mutation, 0, len(ms)), Provider: string(a.router.LastProvider())}
	for _, m := range ms {
		resp.Mutations = append(resp.Mutations, types.Mutation{Title: m.Title, Description: m.Description, Differences: m.Differences})
	}
	return resp, nil
}

// Expand deepens an idea.
func (a *App) Expand(ctx context.Context, req types.IdeaRequest) (types.IdeaResponse, error) {
	res, err := a.router.ExpandIdea(ctx, req.Idea, router.IdeaOptions{Instructions: req.Focus})
	if err != nil {
		return types.IdeaResponse{}, err
	}
	return ideaResponse(res), nil
}

// Reorganize restructures an idea.
func (a *App) Reorganize(ctx context.Context, req types.IdeaRequest) (types.IdeaResponse, error) {
	res, err := a.router.ReorganizeIdea(ctx, req.Idea, router.IdeaOptions{Instructions: req.Focus})
	if err != nil {
		return types.IdeaResponse{}, err
	}
	return ideaResponse(res), nil
}

func ideaResponse(res router.IdeaResult) types.IdeaResponse {
	out := types.IdeaResponse{
		Text:     res.Text,
		Provider: string(res.Provider),
		Headings: make([]types.Heading, 0, len(res.Headings)),
		Outline:  res.Outline,
		Diff: types.SectionDiff{
			Added:     nonNil(res.Diff.Added),
			Removed:   nonNil(res.Diff.Removed),
			Reordered: nonNil(res.Diff.Reordered),
		},
	}
	for _, h := range res.Headings {
		out.Headings = append(out.Headings, types.Heading{Level: h.Level, Title: strings.TrimSpace(h.Title)})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
