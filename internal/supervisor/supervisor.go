package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"inferd/internal/llm"
	"inferd/internal/model"
)

const (
	DefaultStartGrace  = 2 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

// Options configures a Supervisor. Zero values select defaults.
type Options struct {
	// Matcher overrides the matcher chosen from the descriptor's server kind.
	Matcher ReadinessMatcher
	// StartGrace is how long Start waits for an early readiness, fatal line
	// or exit before returning with the server still loading.
	StartGrace time.Duration
	// StopTimeout bounds the graceful phase of a Stop issued internally.
	StopTimeout time.Duration
	Logger      *zerolog.Logger
	Publisher   EventPublisher
}

// Supervisor owns at most one server process.
type Supervisor struct {
	opts      Options
	log       zerolog.Logger
	publisher EventPublisher
	starts    singleflight.Group

	mu       sync.Mutex
	proc     *ServerProcess
	state    ReadinessState
	lastErr  error
	lastExit *int
}

// New returns a Supervisor with nothing running.
func New(opts Options) *Supervisor {
	if opts.StartGrace <= 0 {
		opts.StartGrace = DefaultStartGrace
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	s := &Supervisor{opts: opts, publisher: opts.Publisher, state: StateNotLoaded}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "supervisor").Logger()
	} else {
		s.log = zerolog.Nop()
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	observeState(StateNotLoaded)
	return s
}

// Start spawns the server described by desc unless one is already running.
// It returns nil once the server is ready or after the start grace period
// with the server still loading; callers poll State for readiness. A spawn
// failure, an exit or a fatal output line within the grace period returns a
// *llm.ProcessStartupError. Concurrent calls share one spawn, and a caller
// whose ctx ends only stops waiting: the spawn carries on for the others.
func (s *Supervisor) Start(ctx context.Context, desc model.Descriptor) error {
	if s.live() {
		return nil
	}
	ch := s.starts.DoChan("start", func() (any, error) {
		return nil, s.start(desc)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		spawnsTotal.WithLabelValues("canceled").Inc()
		return &llm.ProcessStartupError{Reason: "canceled", Err: ctx.Err()}
	}
}

func (s *Supervisor) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

func (s *Supervisor) start(desc model.Descriptor) error {
	if s.live() {
		return nil
	}
	if desc.BinaryPath == "" {
		return s.failStart("spawn_error", &llm.ProcessStartupError{Reason: "spawn", Err: errors.New("server binary path is empty")})
	}
	m := s.opts.Matcher
	if m == nil {
		m = MatcherFor(desc.ServerKind)
	}

	p := newServerProcess(desc, m)
	cmd := exec.Command(desc.BinaryPath, desc.Args()...)
	p.stdout = &lineWriter{fn: func(l string) { s.handleLine(p, "stdout", l) }}
	p.stderr = &lineWriter{fn: func(l string) { s.handleLine(p, "stderr", l) }}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	// Wait must not hang on grandchildren holding the pipes open.
	cmd.WaitDelay = time.Second
	p.cmd = cmd

	// Output goroutines block in handleLine until the slot is published.
	s.mu.Lock()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return s.failStart("spawn_error", &llm.ProcessStartupError{
			Reason: "spawn",
			Err:    fmt.Errorf("start %s: %w", desc.BinaryPath, err),
		})
	}
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	s.proc = p
	s.lastErr = nil
	s.lastExit = nil
	s.setStateLocked(StateLoading)
	s.mu.Unlock()

	go s.wait(p)

	s.log.Info().Str("event", "spawn_start").Int("pid", p.pid).
		Str("model", desc.ModelPath).Int("port", desc.Port).
		Str("band", desc.Band().String()).Int("gpu_layers", desc.GPULayers).
		Msg("server process started")
	s.publish(p, "spawn_start", map[string]any{"port": desc.Port, "args": desc.Args()})

	grace := time.NewTimer(s.opts.StartGrace)
	defer grace.Stop()
	select {
	case <-p.readyCh:
		spawnsTotal.WithLabelValues("ready").Inc()
		return nil
	case line := <-p.fatalCh:
		_ = s.Stop(s.opts.StopTimeout)
		return s.failStart("fatal", &llm.ProcessStartupError{
			Reason:     "fatal",
			Diagnostic: p.tail.String(),
			Err:        errors.New(line),
		})
	case <-p.done:
		if p.detached.Load() {
			// Stopped on purpose while starting up.
			spawnsTotal.WithLabelValues("stopped").Inc()
			return &llm.ProcessStartupError{Reason: "canceled", Err: errors.New("server stopped during startup")}
		}
		return s.failStart("exit", &llm.ProcessStartupError{
			Reason:     "exit",
			Diagnostic: p.tail.String(),
			ExitCode:   p.exitCode,
			Err:        exitCause(p.waitErr),
		})
	case <-grace.C:
		spawnsTotal.WithLabelValues("loading").Inc()
		s.log.Debug().Int("pid", p.pid).Msg("server still loading after grace period")
		return nil
	}
}

func exitCause(err error) error {
	if err == nil {
		return errors.New("server exited before becoming ready")
	}
	return err
}

func (s *Supervisor) failStart(outcome string, err *llm.ProcessStartupError) error {
	spawnsTotal.WithLabelValues(outcome).Inc()
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.log.Error().Str("event", "spawn_"+outcome).Err(err.Err).Msg("server failed to start")
	s.publisher.Publish(Event{Name: "spawn_error", Fields: map[string]any{"reason": err.Reason, "error": err.Error()}})
	return err
}

func (s *Supervisor) handleLine(p *ServerProcess, stream, line string) {
	if p.detached.Load() {
		return
	}
	// Orders this goroutine after the pid write in start.
	s.mu.Lock()
	pid := p.pid
	s.mu.Unlock()
	p.tail.add(line)
	s.log.Debug().Str("stream", stream).Int("pid", pid).Msg(line)

	if p.matcher.Ready(line) {
		s.mu.Lock()
		became := s.proc == p && s.state == StateLoading
		if became {
			s.setStateLocked(StateReady)
		}
		s.mu.Unlock()
		p.signalReady()
		if became {
			s.log.Info().Str("event", "spawn_ready").Int("pid", p.pid).
				Dur("after", time.Since(p.startedAt)).Msg("server ready")
			s.publish(p, "spawn_ready", map[string]any{"url": p.desc.ServerURL()})
		}
		return
	}
	if !p.matcher.Fatal(line) {
		return
	}
	s.mu.Lock()
	loading := s.proc == p && s.state == StateLoading
	if loading {
		s.lastErr = &llm.ProcessStartupError{Reason: "fatal", Err: errors.New(line)}
	}
	s.mu.Unlock()
	if !loading {
		// Errors after readiness are per-request noise.
		s.log.Warn().Int("pid", p.pid).Str("stream", stream).Msg(line)
		return
	}
	s.log.Error().Str("event", "spawn_fatal").Int("pid", p.pid).Msg(line)
	s.publish(p, "spawn_fatal", map[string]any{"line": line})
	p.signalFatal(line)
}

// wait reaps the process and clears the slot if it still holds p.
func (s *Supervisor) wait(p *ServerProcess) {
	err := p.cmd.Wait()
	p.stdout.flush()
	p.stderr.flush()
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	p.exitCode = &code
	p.waitErr = err
	close(p.done)

	s.mu.Lock()
	owned := s.proc == p
	if owned {
		s.proc = nil
		s.lastExit = p.exitCode
		s.setStateLocked(StateNotLoaded)
	}
	unexpected := owned && !p.detached.Load()
	if unexpected && s.lastErr == nil {
		s.lastErr = &llm.ProcessStartupError{Reason: "exit", ExitCode: p.exitCode, Diagnostic: p.tail.String(), Err: exitCause(err)}
	}
	s.mu.Unlock()

	if unexpected {
		s.log.Warn().Str("event", "spawn_exit").Int("pid", p.pid).Int("exit_code", code).
			Err(err).Msg("server process exited")
		s.publish(p, "spawn_exit", map[string]any{"exit_code": code})
	}
}

// Stop terminates the running server: SIGTERM, then a kill after timeout.
// Stop is a no-op when nothing is running and leaves the state NotLoaded
// unless another process took the slot meanwhile.
func (s *Supervisor) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.opts.StopTimeout
	}
	s.mu.Lock()
	p := s.proc
	if p == nil {
		s.setStateLocked(StateNotLoaded)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	p.detached.Store(true)
	mode := "graceful"
	if !p.exited() {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		t := time.NewTimer(timeout)
		select {
		case <-p.done:
		case <-t.C:
			mode = "killed"
			s.log.Warn().Str("event", "spawn_kill").Int("pid", p.pid).Dur("after", timeout).Msg("server ignored SIGTERM; killing")
			s.publish(p, "spawn_kill", nil)
			_ = p.cmd.Process.Kill()
			<-p.done
		}
		t.Stop()
	}
	s.finishStop(p, mode)
	return nil
}

// finishStop clears the slot if it still holds p. A replacement spawned after
// p exited keeps its own state.
func (s *Supervisor) finishStop(p *ServerProcess, mode string) {
	stopsTotal.WithLabelValues(mode).Inc()

	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	if s.proc == nil {
		s.lastExit = p.exitCode
		s.setStateLocked(StateNotLoaded)
	}
	s.mu.Unlock()

	s.log.Info().Str("event", "spawn_stop").Int("pid", p.pid).Str("mode", mode).Msg("server process stopped")
	s.publish(p, "spawn_stop", map[string]any{"mode": mode})
}

// MarkIdle records that the server was unloaded for inactivity. It only
// applies when no process is running.
func (s *Supervisor) MarkIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		s.setStateLocked(StateIdle)
	}
}

// State returns the current readiness state.
func (s *Supervisor) State() ReadinessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Process returns a snapshot of the live process, if any.
func (s *Supervisor) Process() (ProcessInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return ProcessInfo{ExitCode: s.lastExit}, false
	}
	return s.proc.info(), true
}

// LastError returns the most recent startup or exit error, cleared by the
// next successful spawn.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Supervisor) setStateLocked(st ReadinessState) {
	if s.state == st {
		return
	}
	s.state = st
	observeState(st)
}

func (s *Supervisor) publish(p *ServerProcess, name string, fields map[string]any) {
	s.publisher.Publish(Event{Name: name, Model: p.desc.ModelPath, PID: p.pid, Fields: fields})
}
