// Package parser validates scraped records and loads the pipeline's input
// files.
package parser

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/zhalloran/go-scrape-tenders/models"
)

// ValidateTender ensures collection captured the fields every downstream
// stage relies on.
func ValidateTender(t *models.Tender) error {
	if t == nil {
		return fmt.Errorf("tender is nil")
	}
	if t.ID <= 0 {
		return fmt.Errorf("tender missing id")
	}
	if strings.TrimSpace(t.Link) == "" {
		return fmt.Errorf("tender %d missing link", t.ID)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("tender %d missing title", t.ID)
	}
	return nil
}

// NormalizeCell collapses the whitespace the result table pads cells with.
func NormalizeCell(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// LoadKeywords reads search keywords from the second column of a CSV file.
// The first row is treated as a header.
func LoadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read keywords file %s: %w", path, err)
	}

	var keywords []string
	for i, record := range records {
		if i == 0 {
			continue
		}
		if len(record) < 2 {
			continue
		}
		keyword := strings.TrimSpace(record[1])
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}

	if len(keywords) == 0 {
		return nil, fmt.Errorf("keywords file %s has no keywords", path)
	}
	return keywords, nil
}

// LoadCapabilities reads the plant-capability profile wholesale. No structure
// is imposed beyond non-emptiness; the text is embedded verbatim into the
// classification prompt.
func LoadCapabilities(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read capabilities file: %w", err)
	}
	profile := strings.TrimSpace(string(raw))
	if profile == "" {
		return "", fmt.Errorf("capabilities file %s is empty", path)
	}
	return profile, nil
}
