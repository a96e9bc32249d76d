// Package assist adapts an external natural-language rule generator to
// rules.Translator.
//
// The generator is an HTTP service: POST {text, fields} returns {tree}. Its
// output is decoded with types.DecodeNode and handed back untrusted; the
// rule engine validates it like any user-authored tree.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// maxResponseBytes caps generator responses; rule trees are small.
const maxResponseBytes = 1 << 20

// HTTPDoer executes HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTranslator calls a rule generation endpoint.
type HTTPTranslator struct {
	url        string
	client     HTTPDoer
	fields     []types.FieldDescriptor
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// Option configures an HTTPTranslator.
type Option func(*HTTPTranslator)

// WithClient replaces the default 30s-timeout http.Client.
func WithClient(c HTTPDoer) Option {
	return func(t *HTTPTranslator) { t.client = c }
}

// WithRetries sets retry attempts after the first request and the initial
// backoff, which doubles per attempt.
func WithRetries(n int, baseDelay time.Duration) Option {
	return func(t *HTTPTranslator) {
		t.maxRetries = n
		t.baseDelay = baseDelay
	}
}

// NewHTTPTranslator creates a translator for url. fields is sent with every
// request so the generator only proposes catalog fields.
func NewHTTPTranslator(url string, fields []types.FieldDescriptor, logger *slog.Logger, opts ...Option) *HTTPTranslator {
	if logger == nil {
		logger = slog.Default()
	}
	t := &HTTPTranslator{
		url:        url,
		client:     &http.Client{Timeout: 30 * time.Second},
		fields:     fields,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
		logger:     logger.With("component", "assist"),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type translateRequest struct {
	Text   string                  `json:"text"`
	Fields []types.FieldDescriptor `json:"fields"`
}

type translateResponse struct {
	Tree json.RawMessage `json:"tree"`
}

// Translate implements rules.Translator.
func (t *HTTPTranslator) Translate(ctx context.Context, text string) (types.Node, error) {
	body, err := json.Marshal(translateRequest{Text: text, Fields: t.fields})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.baseDelay << (attempt - 1)
			t.logger.Warn("retrying rule generation", "attempt", attempt, "delay", delay, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		node, retry, err := t.call(ctx, body)
		if err == nil {
			return node, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

// call performs one request. retry reports whether the failure is transient
// (network error, 429, 5xx).
func (t *HTTPTranslator) call(ctx context.Context, body []byte) (types.Node, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("rule generator request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read rule generator response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("rule generator returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("rule generator returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var out translateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, fmt.Errorf("invalid rule generator response: %w", err)
	}
	if len(out.Tree) == 0 {
		return nil, false, fmt.Errorf("rule generator response has no tree")
	}
	node, err := types.DecodeNode(out.Tree)
	if err != nil {
		return nil, false, err
	}
	return node, false, nil
}
