// Package enricher fetches tender detail pages and attaches their full
// descriptions.
package enricher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/zhalloran/go-scrape-tenders/config"
	"github.com/zhalloran/go-scrape-tenders/metrics"
	"github.com/zhalloran/go-scrape-tenders/models"
)

// descriptionSelector names the free-text description region on a tender
// detail page.
const descriptionSelector = ".field--name-body"

// Enricher fans description fetches out over a small fixed worker pool.
// Each task runs in its own HTTP session so a failed fetch cannot poison a
// sibling's connection state.
type Enricher struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
	newSession func() *http.Client
}

// New builds an enricher. metrics and logger may be nil.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		newSession: func() *http.Client {
			return &http.Client{
				Timeout: cfg.Timeout.Std(),
				Transport: &http.Transport{
					Proxy: http.ProxyFromEnvironment,
				},
			}
		},
	}
}

// SetSessionFactory overrides how per-task sessions are built. Tests point
// this at fixture servers.
func (e *Enricher) SetSessionFactory(factory func() *http.Client) {
	e.newSession = factory
}

type result struct {
	link        string
	description string
}

// Enrich fetches a description for every unique link and returns the
// mapping. Per-link failures are recorded as models.DescriptionNotFound or
// an error string; they never abort sibling fetches. Results arrive in
// completion order, so callers re-associate by link.
func (e *Enricher) Enrich(ctx context.Context, tenders []*models.Tender) map[string]string {
	links := uniqueLinks(tenders)
	descriptions := make(map[string]string, len(links))
	if len(links) == 0 {
		return descriptions
	}

	workers := e.cfg.EnrichWorkers
	if workers > len(links) {
		workers = len(links)
	}

	jobs := make(chan string)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range jobs {
				results <- result{link: link, description: e.enrichOne(ctx, link)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, link := range links {
			jobs <- link
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		descriptions[r.link] = r.description
	}
	return descriptions
}

// enrichOne runs a single fetch in its own session. The session is torn
// down on every exit path.
func (e *Enricher) enrichOne(ctx context.Context, link string) string {
	if err := ctx.Err(); err != nil {
		e.metrics.IncEnrichment("canceled")
		return fmt.Sprintf("Error: %v", err)
	}

	session := e.newSession()
	defer session.CloseIdleConnections()

	e.pause(ctx)

	description, err := e.fetchDescription(ctx, session, link)
	if err != nil {
		e.logger.Warn("description fetch failed",
			slog.String("link", link),
			slog.Any("error", err),
		)
		e.metrics.IncEnrichment("error")
		return fmt.Sprintf("Error: %v", err)
	}

	if description == models.DescriptionNotFound {
		e.logger.Debug("description region missing", slog.String("link", link))
		e.metrics.IncEnrichment("not_found")
	} else {
		e.metrics.IncEnrichment("ok")
	}
	return description
}

func (e *Enricher) fetchDescription(ctx context.Context, session *http.Client, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := session.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch detail page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("detail page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", err)
	}

	region := doc.Find(descriptionSelector).First()
	text := strings.TrimSpace(region.Text())
	if region.Length() == 0 || text == "" {
		return models.DescriptionNotFound, nil
	}
	return text, nil
}

// pause sleeps the configured jittered delay, or until the context ends.
func (e *Enricher) pause(ctx context.Context) {
	delay := e.cfg.Delay.Std()
	if e.cfg.RandomDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(e.cfg.RandomDelay)))
	}
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func uniqueLinks(tenders []*models.Tender) []string {
	seen := make(map[string]struct{}, len(tenders))
	links := make([]string, 0, len(tenders))
	for _, t := range tenders {
		if t == nil || t.Link == "" {
			continue
		}
		if _, ok := seen[t.Link]; ok {
			continue
		}
		seen[t.Link] = struct{}{}
		links = append(links, t.Link)
	}
	return links
}
