package filter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zhalloran/go-scrape-tenders/config"
	"github.com/zhalloran/go-scrape-tenders/metrics"
	"github.com/zhalloran/go-scrape-tenders/models"
)

// chatFunc adapts a function to the ChatClient interface.
type chatFunc func(ctx context.Context, system, user string) (string, error)

func (f chatFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		SystemPrompt:  "You analyze tenders for relevance.",
		ProbeAttempts: 3,
		ProbeDelay:    0,
		ProbeTimeout:  config.Duration(time.Second),
	}
}

func sampleTenders() []*models.Tender {
	return []*models.Tender{
		{ID: 1, Title: "Structural steel supply", FullDescription: "Fabricate and deliver beams."},
		{ID: 2, Title: "Catering services", FullDescription: "Daily meals for a campus."},
		{ID: 3, Title: "Sheet metal enclosures", FullDescription: "Custom CNC-cut enclosures."},
	}
}

func TestFilterKeepsRelevantTenders(t *testing.T) {
	client := chatFunc(func(ctx context.Context, system, user string) (string, error) {
		if strings.Contains(user, "availability check") {
			return "RELEVANT", nil
		}
		if strings.Contains(user, "Catering") {
			return "NOT RELEVANT", nil
		}
		return "This tender is RELEVANT.", nil
	})

	f := New(client, testChatConfig(), metrics.New(), nil)
	kept, fallback, err := f.Filter(context.Background(), sampleTenders(), "steel fabrication")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if fallback {
		t.Fatalf("fallback = true, want false")
	}
	if len(kept) != 2 {
		t.Fatalf("kept = %d tenders, want 2", len(kept))
	}
	if kept[0].ID != 1 || kept[1].ID != 3 {
		t.Fatalf("kept ids = %d,%d, want 1,3", kept[0].ID, kept[1].ID)
	}
}

func TestFilterUnreachableEndpointPassesAllThrough(t *testing.T) {
	attempts := 0
	client := chatFunc(func(ctx context.Context, system, user string) (string, error) {
		attempts++
		return "", errors.New("connection refused")
	})

	f := New(client, testChatConfig(), metrics.New(), nil)
	tenders := sampleTenders()
	kept, fallback, err := f.Filter(context.Background(), tenders, "steel fabrication")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !fallback {
		t.Fatalf("fallback = false, want true")
	}
	if len(kept) != len(tenders) {
		t.Fatalf("kept = %d tenders, want all %d", len(kept), len(tenders))
	}
	if attempts != 3 {
		t.Fatalf("probe attempts = %d, want 3", attempts)
	}
}

func TestFilterKeepsTenderOnClassificationError(t *testing.T) {
	calls := 0
	client := chatFunc(func(ctx context.Context, system, user string) (string, error) {
		calls++
		if strings.Contains(user, "availability check") {
			return "RELEVANT", nil
		}
		if strings.Contains(user, "Catering") {
			return "", errors.New("model crashed mid-run")
		}
		return "NOT RELEVANT", nil
	})

	f := New(client, testChatConfig(), metrics.New(), nil)
	kept, fallback, err := f.Filter(context.Background(), sampleTenders(), "steel fabrication")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if fallback {
		t.Fatalf("fallback = true, want false")
	}
	// The errored call keeps its tender; the clean NOT RELEVANT verdicts drop theirs.
	if len(kept) != 1 {
		t.Fatalf("kept = %d tenders, want 1", len(kept))
	}
	if kept[0].ID != 2 {
		t.Fatalf("kept id = %d, want 2", kept[0].ID)
	}
}

func TestFilterEmptyInput(t *testing.T) {
	client := chatFunc(func(ctx context.Context, system, user string) (string, error) {
		t.Fatalf("no call expected for empty input")
		return "", nil
	})

	f := New(client, testChatConfig(), metrics.New(), nil)
	kept, fallback, err := f.Filter(context.Background(), nil, "steel fabrication")
	if err != nil || fallback || kept != nil {
		t.Fatalf("Filter(nil) = (%v, %v, %v), want (nil, false, nil)", kept, fallback, err)
	}
}

func TestFilterCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := chatFunc(func(probeCtx context.Context, system, user string) (string, error) {
		if strings.Contains(user, "availability check") {
			return "RELEVANT", nil
		}
		cancel()
		return "RELEVANT", nil
	})

	f := New(client, testChatConfig(), metrics.New(), nil)
	kept, _, err := f.Filter(ctx, sampleTenders(), "steel fabrication")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(kept) != 1 {
		t.Fatalf("kept = %d tenders before cancellation, want 1", len(kept))
	}
}

func TestBuildPromptIncludesProfileAndTender(t *testing.T) {
	prompt := buildPrompt("Welding, CNC cutting.", &models.Tender{
		Title:           "Guardrail supply",
		FullDescription: "Supply highway guardrail sections.",
	})

	for _, want := range []string{
		"Welding, CNC cutting.",
		"Title: Guardrail supply",
		"Description: Supply highway guardrail sections.",
		"RELEVANT or NOT RELEVANT",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
