package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ollama/ollama/api"
)

// Completer sends a prompt to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// generator is the part of the ollama client the completer uses.
type generator interface {
	Generate(ctx context.Context, req *api.GenerateRequest, fn api.GenerateResponseFunc) error
}

// OllamaConfig configures an ollama-backed Completer.
type OllamaConfig struct {
	Host       string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles each time.
	BaseBackoff time.Duration
}

type ollamaCompleter struct {
	client generator
	cfg    OllamaConfig
	logger *log.Logger
	sleep  func(time.Duration)
}

// NewOllamaCompleter creates a Completer talking to the ollama server at
// cfg.Host.
func NewOllamaCompleter(cfg OllamaConfig, logger *log.Logger) (Completer, error) {
	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parsing llm host %q: %w", cfg.Host, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parsing llm host %q: scheme and host are required", cfg.Host)
	}
	return newOllamaCompleter(api.NewClient(base, http.DefaultClient), cfg, logger), nil
}

func newOllamaCompleter(client generator, cfg OllamaConfig, logger *log.Logger) *ollamaCompleter {
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ollamaCompleter{client: client, cfg: cfg, logger: logger, sleep: time.Sleep}
}

// Complete runs one non-streaming generation. Timed-out attempts are
// retried with exponential backoff up to MaxRetries times; any other error
// is returned at once.
func (c *ollamaCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.cfg.BaseBackoff
			c.logger.Warn("llm request timed out, retrying", "attempt", attempt, "backoff", backoff)
			c.sleep(backoff)
		}
		out, err := c.attempt(ctx, system, prompt)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil || !isTimeout(err) {
			return "", fmt.Errorf("llm completion: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("llm completion: giving up after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *ollamaCompleter) attempt(ctx context.Context, system, prompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	stream := false
	req := &api.GenerateRequest{
		Model:  c.cfg.Model,
		System: system,
		Prompt: prompt,
		Stream: &stream,
	}
	var sb strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("empty response from model")
	}
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
