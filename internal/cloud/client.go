// Package cloud is an llm.Backend for OpenAI-compatible chat completion APIs.
package cloud

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

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"inferd/internal/llm"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	maxResponseBytes = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// Client is stateless apart from its configuration.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client
	log     zerolog.Logger
}

var _ llm.Backend = (*Client)(nil)

func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   opts.Model,
		timeout: opts.RequestTimeout,
		http:    opts.HTTPClient,
		log:     opts.Logger.With().Str("component", "cloud").Logger(),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = 60 * time.Second
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

func (c *Client) Name() llm.Provider { return llm.ProviderCloud }

// IsAvailable reports whether an API key and base URL are configured.
func (c *Client) IsAvailable() bool { return c.apiKey != "" && c.baseURL != "" }

// EnsureReady has nothing to warm up.
func (c *Client) EnsureReady(context.Context) (bool, error) { return c.IsAvailable(), nil }

func (c *Client) Classify(ctx context.Context, text string) (llm.Classification, error) {
	raw, err := c.Complete(ctx, llm.ClassificationPrompt(text), llm.ClassificationOptions(false))
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// Complete sends prompt as a single user message. Grammars are ignored.
func (c *Client) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	const op = "cloud completion"
	if !c.IsAvailable() {
		return "", llm.ErrConfiguration(llm.ConfigDisabled, "cloud backend has no API key")
	}
	issued := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &llm.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", requestErr(op, ctx, issued, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", requestErr(op, ctx, issued, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(b, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(b))
		}
		if len(msg) > 512 {
			msg = msg[:512] + "..."
		}
		return "", &llm.NetworkError{Op: op, StatusCode: resp.StatusCode, Body: msg}
	}
	content := gjson.GetBytes(b, "choices.0.message.content")
	if !content.Exists() {
		return "", &llm.NetworkError{Op: op, StatusCode: resp.StatusCode, Body: "response has no choices"}
	}
	c.log.Debug().Str("model", c.model).Dur("took", time.Since(started)).
		Int("chars", len(content.String())).Msg("cloud completion done")
	return content.String(), nil
}

// requestErr types a transport failure; a timeout reports the budget the
// request had, whichever deadline set it.
func requestErr(op string, ctx context.Context, issued time.Time, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		dl, _ := ctx.Deadline()
		return &llm.TimeoutError{Op: op, After: dl.Sub(issued).Round(time.Millisecond), Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &llm.NetworkError{Op: op, Err: fmt.Errorf("request canceled: %w", context.Canceled)}
	}
	return &llm.NetworkError{Op: op, Err: err}
}
