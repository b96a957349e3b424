// Package health reports liveness and resident memory of the local server
// process. It only observes; process state belongs to the supervisor.
package health

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Report is a point-in-time health sample.
type Report struct {
	IsRunning     bool    `json:"is_running"`
	PID           int     `json:"pid,omitempty"`
	MemoryMB      float64 `json:"memory_mb,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
}

var errNotRunning = errors.New("process not running")

var rssGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "inferd",
	Name:      "server_rss_megabytes",
	Help:      "Resident memory of the local inference server process; 0 when not running.",
})

func init() { prometheus.MustRegister(rssGauge) }

// Monitor samples the attached pid.
type Monitor struct {
	mu        sync.Mutex
	pid       int
	startedAt time.Time
	log       zerolog.Logger

	// rss returns resident bytes for pid; replaced in tests.
	rss func(pid int) (int64, error)
	now func() time.Time
}

// NewMonitor returns a Monitor with nothing attached.
func NewMonitor(log zerolog.Logger) *Monitor {
	return &Monitor{log: log.With().Str("component", "health").Logger(), rss: residentBytes, now: time.Now}
}

// Attach starts reporting on pid.
func (m *Monitor) Attach(pid int, startedAt time.Time) {
	m.mu.Lock()
	m.pid, m.startedAt = pid, startedAt
	m.mu.Unlock()
}

// Detach stops reporting; Health then returns a not-running report.
func (m *Monitor) Detach() {
	m.mu.Lock()
	m.pid, m.startedAt = 0, time.Time{}
	m.mu.Unlock()
}

// Health samples the attached process. Failures yield IsRunning=false.
func (m *Monitor) Health() Report {
	m.mu.Lock()
	pid, startedAt := m.pid, m.startedAt
	m.mu.Unlock()
	if pid <= 0 {
		return Report{}
	}
	if !alive(pid) {
		return Report{PID: pid}
	}
	b, err := m.rss(pid)
	if err != nil {
		m.log.Debug().Int("pid", pid).Err(err).Msg("health sample failed")
		return Report{PID: pid}
	}
	r := Report{IsRunning: true, PID: pid, MemoryMB: float64(b) / (1 << 20)}
	if !startedAt.IsZero() {
		r.UptimeSeconds = m.now().Sub(startedAt).Seconds()
	}
	return r
}

// Run samples every interval into the rss gauge until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		r := m.Health()
		rssGauge.Set(r.MemoryMB)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// psResident asks ps for the RSS in KiB.
func psResident(pid int) (int64, error) {
	out, err := exec.Command("ps", "-o", "rss=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(out))
	if s == "" {
		return 0, errNotRunning
	}
	kb, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return kb * 1024, nil
}
