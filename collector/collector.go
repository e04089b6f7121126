// Package collector drives a browsing session against the tender-search
// site and extracts result rows into tender records.
package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zhalloran/go-scrape-tenders/config"
	"github.com/zhalloran/go-scrape-tenders/metrics"
	"github.com/zhalloran/go-scrape-tenders/models"
	"github.com/zhalloran/go-scrape-tenders/parser"
)

// resultColumns is the minimum cell count of a usable result row:
// title/link, category, date posted, closing date, organization.
const resultColumns = 5

// Collector issues one keyword query per run and turns the rendered result
// table into tender records with ids assigned from the run's cursor value.
type Collector struct {
	cfg       *config.Config
	host      string
	metrics   *metrics.Metrics
	transport http.RoundTripper
}

// New builds a collector. metrics may be nil.
func New(cfg *config.Config, m *metrics.Metrics) (*Collector, error) {
	parsed, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("search url must include a host")
	}
	return &Collector{cfg: cfg, host: parsed.Host, metrics: m}, nil
}

// SetTransport overrides the HTTP transport of future sessions. Tests use
// this to serve recorded fixtures instead of the live site.
func (c *Collector) SetTransport(rt http.RoundTripper) {
	c.transport = rt
}

// Collect opens a fresh browsing session, submits keyword, and extracts one
// page of results. Accepted rows get ids startID+1, startID+2, ... in table
// order; rows whose organization matches the configured exclusion are
// dropped before id assignment and consume no id, as are rows whose link
// was already seen this session. Returns the records, the excluded-row
// count, and a fatal error if the page or its result table never arrived.
func (c *Collector) Collect(ctx context.Context, keyword string, startID int) ([]*models.Tender, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	session, err := c.newSession()
	if err != nil {
		return nil, 0, err
	}

	seen, err := lru.New[string, struct{}](c.cfg.DedupeMaxSize)
	if err != nil {
		return nil, 0, fmt.Errorf("dedupe cache: %w", err)
	}

	var (
		tenders   []*models.Tender
		excluded  int
		tableSeen bool
		fetchErr  error
		nextID    = startID
	)

	session.OnHTML("table tbody", func(e *colly.HTMLElement) {
		tableSeen = true
	})

	session.OnHTML("table tbody tr", func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}

		cells := e.DOM.Find("td")
		if cells.Length() < resultColumns {
			return
		}

		anchor := cells.Eq(0).Find("a").First()
		title := parser.NormalizeCell(anchor.Text())
		href, _ := anchor.Attr("href")
		link := e.Request.AbsoluteURL(href)
		if title == "" || link == "" {
			return
		}

		organization := parser.NormalizeCell(cells.Eq(4).Text())
		if organization == c.cfg.ExcludedOrganization {
			excluded++
			c.metrics.IncExcluded()
			return
		}

		if _, dup := seen.Get(link); dup {
			return
		}
		seen.Add(link, struct{}{})

		nextID++
		tenders = append(tenders, &models.Tender{
			ID:           nextID,
			Title:        title,
			Link:         link,
			Category:     parser.NormalizeCell(cells.Eq(1).Text()),
			DatePosted:   parser.NormalizeCell(cells.Eq(2).Text()),
			ClosingDate:  parser.NormalizeCell(cells.Eq(3).Text()),
			Organization: organization,
		})
		c.metrics.IncCollected()
	})

	session.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = classifyError(err, statusCode)
	})

	searchURL := buildSearchURL(c.cfg.SearchURL, keyword)
	visitErr := session.Visit(searchURL)
	session.Wait()

	if fetchErr == nil && visitErr != nil {
		fetchErr = classifyError(visitErr, 0)
	}
	if fetchErr != nil {
		return tenders, excluded, fmt.Errorf("search %q (%s): %w", keyword, errorTypeLabel(fetchErr), fetchErr)
	}
	if !tableSeen {
		return tenders, excluded, ErrNoResultTable{URL: searchURL}
	}

	return tenders, excluded, nil
}

// newSession configures a single-use colly collector. Delay and RandomDelay
// pace navigation the way a human would; Parallelism stays at 1 because the
// search flow is strictly sequential.
func (c *Collector) newSession() (*colly.Collector, error) {
	session := colly.NewCollector(
		colly.AllowedDomains(c.host),
		colly.UserAgent(c.cfg.UserAgent),
	)
	session.SetRequestTimeout(c.cfg.Timeout.Std())
	session.IgnoreRobotsTxt = true

	if err := session.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       c.cfg.Delay.Std(),
		RandomDelay: c.cfg.RandomDelay.Std(),
	}); err != nil {
		return nil, fmt.Errorf("configure pacing: %w", err)
	}

	if c.transport != nil {
		session.WithTransport(c.transport)
	}
	return session, nil
}

func buildSearchURL(base, keyword string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	query.Set("words", keyword)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
