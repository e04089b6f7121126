// Package pipeline sequences collection, enrichment, and relevance
// filtering, and owns the run's side effects: the cursor file, the
// intermediate artifacts, and the final sink.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhalloran/go-scrape-tenders/config"
	"github.com/zhalloran/go-scrape-tenders/cursor"
	"github.com/zhalloran/go-scrape-tenders/metrics"
	"github.com/zhalloran/go-scrape-tenders/models"
	"github.com/zhalloran/go-scrape-tenders/parser"
)

// ListingCollector produces one page of tender records for a keyword,
// assigning ids upward from startID. It also reports how many rows the
// excluded-organization rule dropped.
type ListingCollector interface {
	Collect(ctx context.Context, keyword string, startID int) ([]*models.Tender, int, error)
}

// DescriptionEnricher maps each tender link to a description or an error
// sentinel.
type DescriptionEnricher interface {
	Enrich(ctx context.Context, tenders []*models.Tender) map[string]string
}

// RelevanceFilter returns the relevant subset, or the full input with
// fallback=true when the classification endpoint is unavailable.
type RelevanceFilter interface {
	Filter(ctx context.Context, tenders []*models.Tender, capabilities string) ([]*models.Tender, bool, error)
}

// Event is one discrete progress message. The UI shell consumes these
// asynchronously instead of reaching into pipeline state.
type Event struct {
	Stage   models.Stage
	Message string
}

// Deps wires the stage implementations into the orchestrator. NewSink is a
// factory rather than an instance so the sink file is only touched once the
// filter stage has produced a result.
type Deps struct {
	Collector ListingCollector
	Enricher  DescriptionEnricher
	Filter    RelevanceFilter
	Cursor    cursor.Cursor
	NewSink   func() (OutputWriter, error)
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Orchestrator runs the scrape -> enrich -> filter pipeline. One run at a
// time: the cursor and sink files are single-writer resources and callers
// must not start a second run against them while one is in flight.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	events chan Event
}

// New constructs the orchestrator.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		events: make(chan Event, 16),
	}
}

// Events returns the progress stream. It is closed exactly once, after the
// run completes.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Run executes the pipeline once and reports which stage it reached. Fatal
// stage errors halt the run; artifacts written by earlier stages stay on
// disk for diagnosis. Run never retries a whole-pipeline failure; that
// decision belongs to the caller.
func (o *Orchestrator) Run(ctx context.Context) *models.RunReport {
	report := &models.RunReport{
		StartTime:    o.deps.Now(),
		StageReached: models.StageSetup,
	}
	defer func() {
		report.EndTime = o.deps.Now()
		close(o.events)
	}()

	keywords, err := parser.LoadKeywords(o.cfg.KeywordsFile)
	if err != nil {
		return o.fail(report, err)
	}
	capabilities, err := parser.LoadCapabilities(o.cfg.CapabilitiesFile)
	if err != nil {
		return o.fail(report, err)
	}

	// Only the first keyword is processed per run; iterating the rest is a
	// known extension point.
	keyword := keywords[0]
	report.Keyword = keyword

	report.StageReached = models.StageCollect
	o.emit(models.StageCollect, fmt.Sprintf("searching tenders for %q", keyword))

	startID, err := o.deps.Cursor.Read()
	if err != nil {
		return o.fail(report, err)
	}

	tenders, excluded, collectErr := o.deps.Collector.Collect(ctx, keyword, startID)
	report.Collected = len(tenders)
	report.Excluded = excluded
	report.LastID = startID + len(tenders)

	// Write the cursor back even when collection aborted partway: it must
	// reflect the highest id actually assigned, or the next run reuses ids.
	if err := o.deps.Cursor.Write(report.LastID); err != nil {
		if collectErr == nil {
			return o.fail(report, err)
		}
		o.deps.Logger.Error("cursor write-back failed after aborted collection", slog.Any("error", err))
	}

	tenders = o.dropInvalid(tenders)

	if len(tenders) > 0 {
		rawPath := o.artifactPath(fmt.Sprintf("tender_data_%s.csv", o.deps.Now().Format("20060102_150405")))
		if err := writeArtifact(rawPath, LayoutRaw, tenders); err != nil {
			o.deps.Logger.Warn("raw artifact not written", slog.Any("error", err))
		} else {
			report.RawArtifact = rawPath
		}
	}

	if collectErr != nil {
		return o.fail(report, collectErr)
	}
	o.deps.Logger.Info("collection finished",
		slog.String("keyword", keyword),
		slog.Int("collected", len(tenders)),
		slog.Int("excluded", excluded),
		slog.Int("last_id", report.LastID),
	)

	report.StageReached = models.StageEnrich
	o.emit(models.StageEnrich, fmt.Sprintf("fetching descriptions for %d tenders", len(tenders)))

	descriptions := o.deps.Enricher.Enrich(ctx, tenders)
	for _, tender := range tenders {
		if description, ok := descriptions[tender.Link]; ok {
			tender.FullDescription = description
		}
	}
	report.Enriched = countEnriched(tenders)
	if err := ctx.Err(); err != nil {
		return o.fail(report, err)
	}

	enrichedPath := o.artifactPath("tender_data_with_descriptions.csv")
	if err := writeArtifact(enrichedPath, LayoutEnriched, tenders); err != nil {
		o.deps.Logger.Warn("enriched artifact not written", slog.Any("error", err))
	} else {
		report.EnrichedArtifact = enrichedPath
	}

	report.StageReached = models.StageFilter
	o.emit(models.StageFilter, "classifying tenders against plant capabilities")

	kept, fallback, err := o.deps.Filter.Filter(ctx, tenders, capabilities)
	if err != nil {
		return o.fail(report, err)
	}
	report.FilterFallback = fallback
	report.Relevant = len(kept)

	report.StageReached = models.StageWrite
	o.emit(models.StageWrite, fmt.Sprintf("writing %d tenders to sink", len(kept)))

	if err := o.writeSink(kept); err != nil {
		return o.fail(report, err)
	}
	report.OutputFile = o.cfg.OutputFile

	report.StageReached = models.StageDone
	report.Success = true
	o.deps.Metrics.IncRun("success")
	o.emit(models.StageDone, fmt.Sprintf("run complete: %d relevant tenders", len(kept)))
	return report
}

// writeSink (over)writes the final output, header included even when kept
// is empty.
func (o *Orchestrator) writeSink(kept []*models.Tender) error {
	sink, err := o.deps.NewSink()
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}

	writeErr := sink.Write(kept)
	if writeErr == nil {
		writeErr = sink.Validate()
	}
	if closeErr := sink.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("write sink: %w", writeErr)
	}
	return nil
}

func (o *Orchestrator) fail(report *models.RunReport, err error) *models.RunReport {
	report.Success = false
	report.Err = fmt.Errorf("%s stage: %w", report.StageReached, err)
	o.deps.Metrics.IncRun("failed")
	o.deps.Logger.Error("pipeline run failed",
		slog.String("stage", string(report.StageReached)),
		slog.Any("error", err),
	)
	o.emit(report.StageReached, fmt.Sprintf("failed: %v", err))
	return report
}

// emit delivers a progress message without ever blocking the pipeline; a
// slow or absent consumer just misses intermediate updates.
func (o *Orchestrator) emit(stage models.Stage, message string) {
	select {
	case o.events <- Event{Stage: stage, Message: message}:
	default:
	}
}

// dropInvalid removes records that lack an id, title, or link. Such a row
// already consumed an id, so the cursor is unaffected; it just cannot be
// enriched or written.
func (o *Orchestrator) dropInvalid(tenders []*models.Tender) []*models.Tender {
	valid := make([]*models.Tender, 0, len(tenders))
	for _, tender := range tenders {
		if err := parser.ValidateTender(tender); err != nil {
			o.deps.Logger.Warn("dropping invalid tender record", slog.Any("error", err))
			continue
		}
		valid = append(valid, tender)
	}
	return valid
}

func (o *Orchestrator) artifactPath(name string) string {
	return filepath.Join(o.cfg.DataDir, name)
}

func writeArtifact(path string, layout Layout, tenders []*models.Tender) error {
	writer, err := NewCSVWriter(path, layout)
	if err != nil {
		return err
	}
	if err := writer.Write(tenders); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// countEnriched counts tenders whose enrichment attempt produced a real
// description rather than a sentinel.
func countEnriched(tenders []*models.Tender) int {
	count := 0
	for _, tender := range tenders {
		if !tender.Enriched() {
			continue
		}
		if tender.FullDescription == models.DescriptionNotFound {
			continue
		}
		if strings.HasPrefix(tender.FullDescription, "Error: ") {
			continue
		}
		count++
	}
	return count
}
