package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/property-docs/internal/config"
	"github.com/kirillkom/property-docs/internal/core/domain"
)

func TestNewEngineFromConfig(t *testing.T) {
	cfg := config.Load()
	cfg.DedupPeriodMode = "exact"

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	result, err := engine.Classify(domain.IncomingFile{Filename: "a.pdf", Checksum: "x"}, nil)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Status != domain.StatusNotDuplicate {
		t.Fatalf("unexpected status %q", result.Status)
	}
}

func TestNewEngineRejectsBadSettings(t *testing.T) {
	cfg := config.Load()
	cfg.DedupPeriodMode = "fuzzy"
	if _, err := NewEngine(cfg); err == nil {
		t.Fatalf("expected error for unknown period mode")
	}

	cfg = config.Load()
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("stopwords: [unterminated"), 0o600); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}
	cfg.DedupLexiconPath = path
	if _, err := NewEngine(cfg); err == nil {
		t.Fatalf("expected error for malformed lexicon")
	}
}

func TestNewFailsFastOnInvalidConfig(t *testing.T) {
	cfg := config.Load()
	cfg.DedupProbableThreshold = 2
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected config validation error")
	}
}

func TestResilienceConfig(t *testing.T) {
	cfg := config.Load()
	cfg.ResilienceRetryInitialBackoffMS = 50
	cfg.ResilienceBreakerMinRequests = -1

	got := ResilienceConfig(cfg)
	if got.Retry.InitialBackoff != 50*time.Millisecond {
		t.Fatalf("unexpected initial backoff %v", got.Retry.InitialBackoff)
	}
	if got.Breaker.MinRequests != 0 {
		t.Fatalf("negative min requests must clamp to zero, got %d", got.Breaker.MinRequests)
	}
	lookup, ok := got.RetryOverrides["postgres.find_candidates"]
	if !ok || lookup.MaxAttempts != 2 || lookup.Jitter != cfg.ResilienceRetryJitter {
		t.Fatalf("candidate lookups must use the upload-path budget, got %+v", lookup)
	}
}
