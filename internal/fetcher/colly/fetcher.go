// Package collyfetcher harvests links from index pages using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/metrics"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Harvester collects the anchors of a single page. It never follows links.
type Harvester struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Harvester.
func New(cfg Config, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.MaxDepth(1))
	c.WithTransport(newHTTPTransport())
	return &Harvester{cfg: cfg, baseCollector: c, logger: logger}
}

// Links fetches pageURL once and returns the absolute href of every anchor in
// document order. Duplicates are kept.
func (h *Harvester) Links(ctx context.Context, pageURL string) ([]string, error) {
	var (
		links    []string
		status   int
		fetchErr error
	)
	start := time.Now()
	collector := h.buildCollector()

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if abs := e.Request.AbsoluteURL(e.Attr("href")); abs != "" {
			links = append(links, abs)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	err := h.runCollector(ctx, collector, pageURL)
	if err != nil && ctx.Err() != nil {
		// The visit may still be running; its callbacks own the locals.
		return nil, talk.NewFetchError(pageURL, 0, "harvest links", err)
	}
	metrics.ObserveFetch(pageURL, status, time.Since(start))
	switch {
	case err != nil:
		return nil, talk.NewFetchError(pageURL, status, "harvest links", err)
	case fetchErr != nil:
		return nil, talk.NewFetchError(pageURL, status, "harvest links", fetchErr)
	}
	h.logger.Debug("Links harvested", zap.String("url", pageURL), zap.Int("count", len(links)))
	return links, nil
}

func (h *Harvester) buildCollector() *colly.Collector {
	collector := h.baseCollector.Clone()
	collector.AllowURLRevisit = true
	if h.cfg.UserAgent != "" {
		collector.UserAgent = h.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !h.cfg.RespectRobots
	timeout := h.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (h *Harvester) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
