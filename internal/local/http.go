package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"inferd/internal/llm"
	"inferd/internal/model"
)

const (
	maxResponseBytes = 8 << 20
	// registerAttempts bounds restarts when an idle unload wins the race
	// against a request.
	registerAttempts = 3
)

var errServerGone = errors.New("local server stopped before the request was sent")

// completionRequest is the llama.cpp native /completion payload.
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
	Grammar     string   `json:"grammar,omitempty"`
}

// pendingRequest is one request in flight against the server.
type pendingRequest struct {
	ID       string
	Prompt   string
	Options  llm.CompletionOptions
	Started  time.Time
	Deadline time.Time
	cancel   context.CancelFunc
}

// register adds a request to the in-flight table, which holds off idle
// unload. errServerGone means the server was unloaded since EnsureReady.
func (c *Client) register(ctx context.Context, prompt string, opts llm.CompletionOptions) (context.Context, *pendingRequest, model.Descriptor, error) {
	started := time.Now()
	rctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	dl, _ := rctx.Deadline()
	p := &pendingRequest{ID: uuid.NewString(), Prompt: prompt, Options: opts, Started: started, Deadline: dl, cancel: cancel}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		cancel()
		return nil, nil, model.Descriptor{}, llm.ErrConfiguration(llm.ConfigDisabled, "local client is closed")
	}
	_, live := c.sup.Process()
	if c.unloading != nil || c.desc == nil || !live {
		cancel()
		return nil, nil, model.Descriptor{}, errServerGone
	}
	c.pending[p.ID] = p
	return rctx, p, *c.desc, nil
}

// finish drops p from the in-flight table and re-arms the idle timer.
func (c *Client) finish(p *pendingRequest) {
	p.cancel()
	c.mu.Lock()
	delete(c.pending, p.ID)
	c.lastUsed = time.Now()
	c.mu.Unlock()
	c.armIdle()
}

// complete brings the server up, posts one completion and returns the
// content field.
func (c *Client) complete(ctx context.Context, op, prompt string, opts llm.CompletionOptions) (string, error) {
	var (
		rctx context.Context
		p    *pendingRequest
		desc model.Descriptor
	)
	for attempt := 1; ; attempt++ {
		ok, err := c.EnsureReady(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", c.unavailableErr()
		}
		rctx, p, desc, err = c.register(ctx, prompt, opts)
		if err == nil {
			break
		}
		if !errors.Is(err, errServerGone) {
			return "", err
		}
		if attempt == registerAttempts {
			return "", &llm.NetworkError{Op: op, Err: err}
		}
		c.log.Debug().Str("op", op).Int("attempt", attempt).Msg("server unloaded before request; restarting")
	}
	defer c.finish(p)

	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		NPredict:    opts.MaxTokens,
		Temperature: opts.Temperature,
		Stop:        opts.Stop,
		Grammar:     opts.Grammar,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, desc.ServerURL()+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", &llm.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", requestErr(op, rctx, p, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", requestErr(op, rctx, p, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &llm.NetworkError{Op: op, StatusCode: resp.StatusCode, Body: snippet(b)}
	}
	content := gjson.GetBytes(b, "content").String()
	c.log.Debug().Str("op", op).Str("request_id", p.ID).Dur("took", time.Since(started)).
		Int("chars", len(content)).Msg("completion done")
	return content, nil
}

// requestErr types a transport failure. The timeout reports the budget the
// request actually had, which is shorter than RequestTimeout when the
// caller's deadline came first.
func requestErr(op string, rctx context.Context, p *pendingRequest, err error) error {
	switch {
	case errors.Is(rctx.Err(), context.DeadlineExceeded):
		return &llm.TimeoutError{Op: op, After: p.Deadline.Sub(p.Started).Round(time.Millisecond), Err: err}
	case errors.Is(rctx.Err(), context.Canceled):
		return &llm.NetworkError{Op: op, Err: fmt.Errorf("request canceled: %w", context.Canceled)}
	}
	return &llm.NetworkError{Op: op, Err: err}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}

// armIdle (re)starts the idle timer. Each arm bumps the generation so a
// timer that already fired for an older generation does nothing.
func (c *Client) armIdle() {
	if c.opts.KeepLoaded || c.opts.IdleUnload <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.idleGen++
	gen := c.idleGen
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.opts.IdleUnload, func() { c.onIdle(gen) })
}

func (c *Client) onIdle(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.idleGen {
		c.mu.Unlock()
		return
	}
	if len(c.pending) > 0 {
		c.mu.Unlock()
		c.armIdle()
		return
	}
	c.idleGen++
	c.idleTimer = nil
	// Requests see the unload from here on and wait for it in EnsureReady.
	done := make(chan struct{})
	c.unloading = done
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.unloading = nil
		c.mu.Unlock()
		close(done)
	}()

	if _, live := c.sup.Process(); !live {
		return
	}
	c.log.Info().Dur("idle", c.opts.IdleUnload).Msg("unloading idle local server")
	_ = c.sup.Stop(c.opts.StopTimeout)
	c.sup.MarkIdle()
	c.mon.Detach()
}
