// Package models defines data structures shared across the pipeline stages.
package models

import "time"

// DescriptionNotFound is recorded when a detail page loads but carries no
// description region. It marks a completed enrichment attempt; an empty
// FullDescription means the tender was never enriched at all.
const DescriptionNotFound = "Element not found"

// Tender is one scraped opportunity row. ID is assigned from the persisted
// cursor and is unique across runs; Link is the join key between stages.
type Tender struct {
	ID              int    `csv:"id" json:"id"`
	Title           string `csv:"title" json:"title"`
	Link            string `csv:"link" json:"link"`
	Category        string `csv:"category" json:"category"`
	DatePosted      string `csv:"date_posted" json:"date_posted"`
	ClosingDate     string `csv:"closing_date" json:"closing_date"`
	Organization    string `csv:"organization" json:"organization"`
	FullDescription string `csv:"full_description" json:"full_description,omitempty"`
}

// Enriched reports whether an enrichment attempt completed for this tender,
// successfully or not.
func (t *Tender) Enriched() bool {
	return t.FullDescription != ""
}

// Stage tags the pipeline phase a run reached, for error reporting.
type Stage string

const (
	StageSetup   Stage = "setup"
	StageCollect Stage = "collect"
	StageEnrich  Stage = "enrich"
	StageFilter  Stage = "filter"
	StageWrite   Stage = "write"
	StageDone    Stage = "done"
)

// RunReport is the consolidated outcome handed back to the caller.
type RunReport struct {
	Success      bool
	StageReached Stage
	Err          error

	Keyword        string
	Collected      int
	Excluded       int
	Enriched       int
	Relevant       int
	FilterFallback bool
	LastID         int

	RawArtifact      string
	EnrichedArtifact string
	OutputFile       string

	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
