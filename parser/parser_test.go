package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zhalloran/go-scrape-tenders/models"
)

func TestValidateTender(t *testing.T) {
	tests := []struct {
		name    string
		tender  *models.Tender
		wantErr bool
	}{
		{
			name:    "valid",
			tender:  &models.Tender{ID: 1, Title: "Bridge Deck", Link: "http://example.test/t/1"},
			wantErr: false,
		},
		{
			name:    "nil",
			tender:  nil,
			wantErr: true,
		},
		{
			name:    "missing id",
			tender:  &models.Tender{Title: "Bridge Deck", Link: "http://example.test/t/1"},
			wantErr: true,
		},
		{
			name:    "missing link",
			tender:  &models.Tender{ID: 1, Title: "Bridge Deck"},
			wantErr: true,
		},
		{
			name:    "missing title",
			tender:  &models.Tender{ID: 1, Link: "http://example.test/t/1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTender(tt.tender)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTender = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeCell(t *testing.T) {
	got := NormalizeCell("  Public Works\n\tand Procurement  ")
	if got != "Public Works and Procurement" {
		t.Fatalf("NormalizeCell = %q", got)
	}
}

func TestLoadKeywords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.csv")
	contents := "id,keyword\n1,bridge\n2,sheet metal\n3,\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write keywords: %v", err)
	}

	keywords, err := LoadKeywords(path)
	if err != nil {
		t.Fatalf("load keywords: %v", err)
	}
	if len(keywords) != 2 {
		t.Fatalf("keywords = %v, want 2 entries", keywords)
	}
	if keywords[0] != "bridge" || keywords[1] != "sheet metal" {
		t.Fatalf("unexpected keywords: %v", keywords)
	}
}

func TestLoadKeywordsMissingFile(t *testing.T) {
	if _, err := LoadKeywords(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatalf("expected error for missing keywords file")
	}
}

func TestLoadKeywordsHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.csv")
	if err := os.WriteFile(path, []byte("id,keyword\n"), 0o644); err != nil {
		t.Fatalf("write keywords: %v", err)
	}
	if _, err := LoadKeywords(path); err == nil {
		t.Fatalf("expected error for keyword file with no keywords")
	}
}

func TestLoadCapabilities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.txt")
	if err := os.WriteFile(path, []byte("Sheet metal fabrication, welding, CNC cutting.\n"), 0o644); err != nil {
		t.Fatalf("write capabilities: %v", err)
	}

	profile, err := LoadCapabilities(path)
	if err != nil {
		t.Fatalf("load capabilities: %v", err)
	}
	if profile != "Sheet metal fabrication, welding, CNC cutting." {
		t.Fatalf("profile = %q", profile)
	}
}

func TestLoadCapabilitiesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.txt")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write capabilities: %v", err)
	}
	if _, err := LoadCapabilities(path); err == nil {
		t.Fatalf("expected error for empty capability profile")
	}
}
