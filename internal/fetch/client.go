// Package fetch retrieves page content and specification documents over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// Fetcher returns the textual content of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Settings configures a Client.
type Settings struct {
	// ReaderBase, when set, is prefixed to page URLs so a reader proxy such as
	// https://r.jina.ai/ returns the content. Get never uses it.
	ReaderBase  string
	Timeout     time.Duration
	DialTimeout time.Duration
	UserAgent   string
	MaxBytes    int64
}

// DefaultSettings returns the content-extraction defaults.
func DefaultSettings() Settings {
	return Settings{
		Timeout:     60 * time.Second,
		DialTimeout: 30 * time.Second,
		UserAgent:   "docharvest/1.0",
		MaxBytes:    10 << 20,
	}
}

// Option customizes Settings.
type Option func(*Settings)

func WithReaderBase(base string) Option      { return func(s *Settings) { s.ReaderBase = base } }
func WithTimeout(d time.Duration) Option     { return func(s *Settings) { s.Timeout = d } }
func WithDialTimeout(d time.Duration) Option { return func(s *Settings) { s.DialTimeout = d } }
func WithUserAgent(ua string) Option         { return func(s *Settings) { s.UserAgent = ua } }
func WithMaxBytes(n int64) Option            { return func(s *Settings) { s.MaxBytes = n } }

// Response is a successful HTTP exchange with its body decoded to UTF-8.
type Response struct {
	Body        string
	ContentType string
	FinalURL    string
	Status      int
}

// Client fetches pages and documents.
type Client struct {
	settings Settings
	http     *http.Client
	log      *zap.Logger
}

// NewClient builds a Client. A nil logger disables logging.
func NewClient(log *zap.Logger, opts ...Option) *Client {
	s := DefaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if log == nil {
		log = zap.NewNop()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   s.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		settings: s,
		http:     &http.Client{Transport: transport, Timeout: s.Timeout},
		log:      log.Named("fetch"),
	}
}

// Settings returns the effective settings.
func (c *Client) Settings() Settings { return c.settings }

// Fetch implements Fetcher, going through the reader proxy when configured.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	target := rawURL
	if base := strings.TrimSpace(c.settings.ReaderBase); base != "" {
		target = base + rawURL
	}
	resp, err := c.Get(ctx, target)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

// Get issues a GET and requires a 2xx status.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &Error{Kind: KindOther, URL: rawURL, Err: fmt.Errorf("invalid url")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindOther, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json,application/yaml;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", c.settings.UserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: classify(err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{Kind: KindHTTP, URL: rawURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.settings.MaxBytes))
	if err != nil {
		return nil, &Error{Kind: classify(err), URL: rawURL, Err: err}
	}
	contentType := resp.Header.Get("Content-Type")
	body, err := decode(data, contentType)
	if err != nil {
		return nil, &Error{Kind: KindOther, URL: rawURL, Err: err}
	}
	c.log.Debug("fetched",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		Body:        body,
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
		Status:      resp.StatusCode,
	}, nil
}

// decode converts data to UTF-8 using the declared or sniffed charset.
func decode(data []byte, contentType string) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
