package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/zhalloran/go-scrape-tenders/models"
)

// OutputWriter is the sink a pipeline run writes tenders into.
type OutputWriter interface {
	Write(tenders []*models.Tender) error
	Close() error
	Validate() error
}

// Layout selects which columns a CSV artifact carries. The final sink's
// column order and names are a contract: the UI binds columns positionally.
type Layout int

const (
	// LayoutSink is the final output consumed by the UI shell.
	LayoutSink Layout = iota
	// LayoutRaw is the post-collection backup artifact; it prepends id.
	LayoutRaw
	// LayoutEnriched is the post-enrichment artifact; it also appends
	// full_description.
	LayoutEnriched
)

func (l Layout) header() []string {
	switch l {
	case LayoutRaw:
		return []string{"id", "title", "link", "category", "date_posted", "closing_date", "organization"}
	case LayoutEnriched:
		return []string{"id", "title", "link", "category", "date_posted", "closing_date", "organization", "full_description"}
	default:
		return []string{"title", "link", "category", "date_posted", "closing_date", "organization"}
	}
}

func (l Layout) record(t *models.Tender) []string {
	base := []string{t.Title, t.Link, t.Category, t.DatePosted, t.ClosingDate, t.Organization}
	switch l {
	case LayoutRaw:
		return append([]string{strconv.Itoa(t.ID)}, base...)
	case LayoutEnriched:
		return append(append([]string{strconv.Itoa(t.ID)}, base...), t.FullDescription)
	default:
		return base
	}
}

// CSVWriter writes tenders to CSV. Creating it truncates the target and
// writes the header immediately, so a run that keeps nothing still leaves a
// correctly-headered empty table behind.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	layout Layout
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer for the given layout.
func NewCSVWriter(filename string, layout Layout) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(layout.header()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{file: f, writer: writer, layout: layout}, nil
}

// Write appends tenders to the CSV output.
func (cw *CSVWriter) Write(tenders []*models.Tender) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, tender := range tenders {
		if err := cw.writer.Write(cw.layout.record(tender)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the header made it to disk. A header-only file is valid:
// "ran and found nothing" must be distinguishable from "did not run".
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends tenders in JSONL format.
func (jw *JSONWriter) Write(tenders []*models.Tender) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, tender := range tenders {
		if err := jw.encoder.Encode(tender); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the file handle is still usable.
func (jw *JSONWriter) Validate() error {
	if _, err := jw.file.Stat(); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
}

// DualWriter feeds both a CSV sink and a JSONL sink.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates paired CSV and JSONL sinks.
func NewDualWriter(csvFilename, jsonFilename string, layout Layout) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename, layout)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	return &DualWriter{csvWriter: csvWriter, jsonWriter: jsonWriter}, nil
}

// Write writes tenders to both sinks.
func (dw *DualWriter) Write(tenders []*models.Tender) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(tenders); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	if err := dw.jsonWriter.Write(tenders); err != nil {
		return fmt.Errorf("json write: %w", err)
	}
	return nil
}

// Close closes both sinks.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("json close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close writers: %v", errs)
	}
	return nil
}

// Validate validates both sinks.
func (dw *DualWriter) Validate() error {
	if err := dw.csvWriter.Validate(); err != nil {
		return fmt.Errorf("csv validation: %w", err)
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		return fmt.Errorf("json validation: %w", err)
	}
	return nil
}

// MultiWriter fans writes out to several sinks, e.g. the CSV contract file
// plus a Postgres mirror.
type MultiWriter struct {
	writers []OutputWriter
}

// NewMultiWriter composes sinks; Write/Close/Validate apply to all of them.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write writes tenders to every sink, stopping at the first failure.
func (mw *MultiWriter) Write(tenders []*models.Tender) error {
	for _, w := range mw.writers {
		if err := w.Write(tenders); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the first error.
func (mw *MultiWriter) Close() error {
	var firstErr error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Validate validates every sink.
func (mw *MultiWriter) Validate() error {
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
