package cache

import (
	"context"
	"testing"
	"time"

	"github.com/url-guardian/client/internal/models"
)

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	s := New(time.Hour)
	s.now = func() time.Time { return now }

	resp := models.EnsembleResponse{Subject: "https://example.com", Ensemble: models.AnalysisResult{Label: models.LabelPhishing}}
	if err := s.SetResult(ctx, "https://example.com", resp); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}

	got, ok, err := s.GetResult(ctx, "https://example.com")
	if err != nil || !ok {
		t.Fatalf("Expected cache hit, got ok=%v err=%v", ok, err)
	}
	if got.Subject != "https://example.com" {
		t.Errorf("Unexpected cached subject %q", got.Subject)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := s.GetResult(ctx, "https://example.com"); ok {
		t.Error("Expected expired entry to miss")
	}

	stats, _ := s.ResultStats(ctx)
	if stats.TotalCached != 1 || stats.ActiveCached != 0 || stats.TTLSeconds != 3600 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	s.Cleanup()
	stats, _ = s.ResultStats(ctx)
	if stats.TotalCached != 0 {
		t.Errorf("Expected cleanup to drop expired entries, got %+v", stats)
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := New(time.Minute)
	_ = s.SetResult(ctx, "a", models.EnsembleResponse{})
	_ = s.SetResult(ctx, "b", models.EnsembleResponse{})

	if err := s.ClearResults(ctx); err != nil {
		t.Fatalf("ClearResults failed: %v", err)
	}
	stats, _ := s.ResultStats(ctx)
	if stats.TotalCached != 0 {
		t.Errorf("Expected empty cache, got %+v", stats)
	}
}
