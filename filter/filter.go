// Package filter decides which collected tenders match the plant's
// capability profile by asking an external chat-completion model.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zhalloran/go-scrape-tenders/config"
	"github.com/zhalloran/go-scrape-tenders/metrics"
	"github.com/zhalloran/go-scrape-tenders/models"
)

// ChatClient is the classification endpoint as the filter sees it.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// RetryPolicy bounds the availability probe. Tests inject zero-delay
// variants.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Timeout     time.Duration
}

// Filter classifies tenders against a capability profile. Availability is
// decided once per run, up front; when the endpoint is down the whole stage
// is bypassed rather than dropping opportunities on the floor.
type Filter struct {
	client       ChatClient
	systemPrompt string
	probe        RetryPolicy
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New builds a filter. metrics and logger may be nil.
func New(client ChatClient, cfg config.ChatConfig, m *metrics.Metrics, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		client:       client,
		systemPrompt: cfg.SystemPrompt,
		probe: RetryPolicy{
			MaxAttempts: cfg.ProbeAttempts,
			Delay:       cfg.ProbeDelay.Std(),
			Timeout:     cfg.ProbeTimeout.Std(),
		},
		metrics: m,
		logger:  logger,
	}
}

// Filter returns the relevant subset of tenders, or the full input when the
// endpoint is unreachable at probe time (fallback=true). A human reviews
// false positives later, so every undetermined verdict errs toward
// inclusion: a classification call failing after a successful probe keeps
// that tender.
func (f *Filter) Filter(ctx context.Context, tenders []*models.Tender, capabilities string) (kept []*models.Tender, fallback bool, err error) {
	if len(tenders) == 0 {
		return nil, false, nil
	}

	if !f.probeEndpoint(ctx) {
		f.logger.Warn("classification endpoint unreachable, passing all tenders through",
			slog.Int("tenders", len(tenders)),
			slog.Int("attempts", f.probe.MaxAttempts),
		)
		f.metrics.IncFallback()
		return tenders, true, nil
	}

	for _, tender := range tenders {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return kept, false, ctxErr
		}

		start := time.Now()
		response, callErr := f.client.Complete(ctx, f.systemPrompt, buildPrompt(capabilities, tender))
		f.metrics.ObserveClassify(time.Since(start))

		if callErr != nil {
			f.logger.Warn("classification call failed, keeping tender",
				slog.Int("id", tender.ID),
				slog.Any("error", callErr),
			)
			f.metrics.IncClassification("undetermined")
			kept = append(kept, tender)
			continue
		}

		if ParseVerdict(response) {
			f.logger.Info("tender relevant",
				slog.Int("id", tender.ID),
				slog.String("title", tender.Title),
			)
			f.metrics.IncClassification("relevant")
			kept = append(kept, tender)
		} else {
			f.logger.Debug("tender not relevant",
				slog.Int("id", tender.ID),
				slog.String("title", tender.Title),
			)
			f.metrics.IncClassification("not_relevant")
		}
	}

	return kept, false, nil
}

// probeEndpoint sends one lightweight classification request per attempt
// with a short timeout, up to the policy bound.
func (f *Filter) probeEndpoint(ctx context.Context) bool {
	for attempt := 1; attempt <= f.probe.MaxAttempts; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, f.probe.Timeout)
		_, err := f.client.Complete(probeCtx, f.systemPrompt,
			"Respond with exactly one word: RELEVANT or NOT RELEVANT.\n\nTender details:\nTitle: availability check")
		cancel()
		if err == nil {
			return true
		}

		f.logger.Debug("probe attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if ctx.Err() != nil {
			return false
		}
		if attempt < f.probe.MaxAttempts {
			time.Sleep(f.probe.Delay)
		}
	}
	return false
}

func buildPrompt(capabilities string, tender *models.Tender) string {
	return fmt.Sprintf(`A manufacturing plant has the following capabilities:
%s

Based on this, determine if the following tender is RELEVANT to the plant.
Respond with exactly one word: RELEVANT or NOT RELEVANT.

Tender details:
Title: %s
Description: %s`, capabilities, tender.Title, tender.FullDescription)
}
