package supervisor

import (
	"bytes"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"inferd/internal/model"
)

const (
	tailLimit    = 4096
	maxLineBytes = 64 << 10
)

// ServerProcess is one spawned server. It is owned by the Supervisor that
// started it; callers only see ProcessInfo snapshots.
type ServerProcess struct {
	cmd       *exec.Cmd
	desc      model.Descriptor
	matcher   ReadinessMatcher
	pid       int
	startedAt time.Time

	// detached is set before a deliberate stop so late output and the exit
	// notification no longer touch supervisor state.
	detached atomic.Bool

	readyCh   chan struct{}
	readyOnce sync.Once
	fatalCh   chan string
	fatalOnce sync.Once

	done     chan struct{}
	exitCode *int
	waitErr  error

	tail   tailBuffer
	stdout *lineWriter
	stderr *lineWriter
}

func newServerProcess(desc model.Descriptor, m ReadinessMatcher) *ServerProcess {
	return &ServerProcess{
		desc:    desc,
		matcher: m,
		readyCh: make(chan struct{}),
		fatalCh: make(chan string, 1),
		done:    make(chan struct{}),
	}
}

func (p *ServerProcess) info() ProcessInfo {
	return ProcessInfo{
		PID:        p.pid,
		StartedAt:  p.startedAt,
		BinaryPath: p.desc.BinaryPath,
		ModelPath:  p.desc.ModelPath,
		Port:       p.desc.Port,
	}
}

func (p *ServerProcess) signalReady() { p.readyOnce.Do(func() { close(p.readyCh) }) }

func (p *ServerProcess) signalFatal(line string) {
	p.fatalOnce.Do(func() { p.fatalCh <- line })
}

func (p *ServerProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// lineWriter splits a byte stream into lines and hands each to fn. Each
// instance is written to by a single exec copy goroutine.
type lineWriter struct {
	buf bytes.Buffer
	fn  func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			if w.buf.Len() > maxLineBytes {
				w.emit(string(data))
				w.buf.Reset()
			}
			return len(b), nil
		}
		line := string(data[:i])
		w.buf.Next(i + 1)
		w.emit(line)
	}
}

// flush emits a trailing partial line. Only safe after cmd.Wait returned.
func (w *lineWriter) flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.fn(line)
}

// tailBuffer keeps roughly the last tailLimit bytes of output lines.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	size  int
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(line) > tailLimit {
		line = line[len(line)-tailLimit:]
	}
	t.lines = append(t.lines, line)
	t.size += len(line) + 1
	for t.size > tailLimit && len(t.lines) > 1 {
		t.size -= len(t.lines[0]) + 1
		t.lines = t.lines[1:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
