package transform

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

	"go.uber.org/zap"
)

// HTTP posts content to a transformation endpoint as JSON
// {"content", "source_url"} and reads {"content"} back.
type HTTP struct {
	endpoint string
	token    string
	client   *http.Client
	log      *zap.Logger
}

// HTTPOption configures HTTP.
type HTTPOption func(*HTTP)

// WithToken sends token as a bearer credential.
func WithToken(token string) HTTPOption { return func(h *HTTP) { h.token = token } }

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption { return func(h *HTTP) { h.client = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HTTPOption { return func(h *HTTP) { h.log = l } }

// NewHTTP returns a transformer calling endpoint with the given timeout.
func NewHTTP(endpoint string, timeout time.Duration, opts ...HTTPOption) (*HTTP, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("transform: endpoint must be an http(s) URL, got %q", endpoint)
	}
	h := &HTTP{endpoint: endpoint, client: &http.Client{Timeout: timeout}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.Named("transform")
	return h, nil
}

type transformRequest struct {
	Content   string `json:"content"`
	SourceURL string `json:"source_url"`
}

type transformResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Transform implements Transformer.
func (h *HTTP) Transform(ctx context.Context, text, sourceURL string) (string, error) {
	payload, err := json.Marshal(transformRequest{Content: text, SourceURL: sourceURL})
	if err != nil {
		return "", &Error{Kind: KindOther, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindOther, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	h.log.Debug("transforming", zap.String("url", sourceURL), zap.Int("chars", len(text)))
	resp, err := h.client.Do(req)
	if err != nil {
		return "", &Error{Kind: Classify(err), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", &Error{Kind: Classify(err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &Error{Kind: kindForStatus(resp.StatusCode, msg), Status: resp.StatusCode, Err: errors.New(msg)}
	}

	var out transformResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &Error{Kind: KindOther, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Error != "" {
		return "", &Error{Kind: Classify(errors.New(out.Error)), Err: errors.New(out.Error)}
	}
	if strings.TrimSpace(out.Content) == "" {
		return "", &Error{Kind: KindOther, Err: ErrEmptyOutput}
	}
	return out.Content, nil
}

func kindForStatus(status int, msg string) Kind {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return KindThrottled
	}
	return Classify(errors.New(msg))
}
