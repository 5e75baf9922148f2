// Package fetcher performs the pipeline's HTTP GETs: page fetches parsed into goquery documents
// and binary downloads for slide decks and thumbnails. Redirects are followed by hand with an
// explicit hop ceiling.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/logging"
	"github.com/JakeFAU/talkmigrate/internal/metrics"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// DefaultMaxRedirects bounds redirect chains when Config.MaxRedirects is unset.
const DefaultMaxRedirects = 10

// Config controls HTTP behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher issues GET requests for pages and downloads.
type Fetcher struct {
	cfg    Config
	client *http.Client
	waiter Waiter
	logger *zap.Logger
}

// New builds a Fetcher. waiter may be nil.
func New(cfg Config, waiter Waiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	client := &http.Client{
		Transport: newHTTPTransport(),
		Timeout:   cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		waiter: waiter,
		logger: logging.Named(logger, "fetcher"),
	}
}

// Fetch retrieves rawURL and parses the body as HTML.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*talk.Page, error) {
	resp, finalURL, err := f.follow(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, talk.NewFetchError(finalURL, resp.StatusCode, "unexpected status", nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, talk.NewFetchError(finalURL, resp.StatusCode, "read body", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, talk.NewFetchError(finalURL, resp.StatusCode,
			fmt.Sprintf("page exceeds %d bytes", f.cfg.MaxBodyBytes), nil)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, talk.NewFetchError(finalURL, resp.StatusCode, "parse document", err)
	}
	f.logger.Debug("Fetched page",
		zap.String("url", finalURL),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return &talk.Page{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Doc:        doc,
	}, nil
}

// Download streams rawURL into dest and returns the number of bytes written. The file is written
// to a sibling temp path and renamed so dest never holds a partial download. An empty body is an
// error.
func (f *Fetcher) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	resp, finalURL, err := f.follow(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, talk.NewFetchError(finalURL, resp.StatusCode, "unexpected status", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, fmt.Errorf("create download dir for %s: %w", dest, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", dest, err)
	}
	tmpName := tmp.Name()
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(tmpName)
		return 0, talk.NewFetchError(finalURL, resp.StatusCode, "read body", copyErr)
	case closeErr != nil:
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("close temp file for %s: %w", dest, closeErr)
	case n == 0:
		_ = os.Remove(tmpName)
		return 0, talk.NewFetchError(finalURL, resp.StatusCode, "empty body", nil)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("move download into %s: %w", dest, err)
	}
	f.logger.Debug("Downloaded file", zap.String("url", finalURL), zap.String("path", dest), zap.Int64("bytes", n))
	return n, nil
}

// follow issues GETs until a non-redirect response arrives or the hop ceiling is hit. The caller
// owns the returned body.
func (f *Fetcher) follow(ctx context.Context, rawURL string) (*http.Response, string, error) {
	current := rawURL
	for hop := 0; ; hop++ {
		if hop > f.cfg.MaxRedirects {
			return nil, current, talk.NewFetchError(rawURL, 0,
				fmt.Sprintf("exceeded %d redirects", f.cfg.MaxRedirects), nil)
		}
		resp, err := f.get(ctx, current)
		if err != nil {
			return nil, current, talk.NewFetchError(current, 0, "request failed", err)
		}
		if !isRedirect(resp.StatusCode) {
			return resp, current, nil
		}
		location := resp.Header.Get("Location")
		drain(resp)
		if location == "" {
			return nil, current, talk.NewFetchError(current, resp.StatusCode, "redirect without Location header", nil)
		}
		next, err := resolve(current, location)
		if err != nil {
			return nil, current, talk.NewFetchError(current, resp.StatusCode, "invalid redirect location", err)
		}
		f.logger.Debug("Following redirect",
			zap.String("from", current),
			zap.String("to", next),
			zap.Int("status_code", resp.StatusCode),
		)
		current = next
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if f.waiter != nil {
		if err := f.waiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,image/*;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(rawURL, 0, time.Since(start))
		return nil, err
	}
	metrics.ObserveFetch(rawURL, resp.StatusCode, time.Since(start))
	return resp, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func resolve(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
