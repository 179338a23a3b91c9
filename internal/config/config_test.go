package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if cfg.Crawl.RateCapacity != 20 {
		t.Errorf("RateCapacity = %v, want 20", cfg.Crawl.RateCapacity)
	}
	if cfg.Crawl.MaxRetryAttempts != 3 {
		t.Errorf("MaxRetryAttempts = %d, want 3", cfg.Crawl.MaxRetryAttempts)
	}
	if !cfg.Crawl.RateFailFast {
		t.Error("RateFailFast should default to true")
	}
	if cfg.Jobs.OperationTimeout != 2*time.Minute {
		t.Errorf("OperationTimeout = %v, want 2m", cfg.Jobs.OperationTimeout)
	}
}

func TestSiteCrawlOverrides(t *testing.T) {
	t.Setenv("CRAWL_ALIEXPRESS_RATE_CAPACITY", "5")
	t.Setenv("CRAWL_ALIEXPRESS_RATE_LIMIT_DELAY", "12s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	ali := cfg.Crawl.SiteCrawl("aliexpress")
	if ali.RateCapacity != 5 {
		t.Errorf("aliexpress RateCapacity = %v, want 5", ali.RateCapacity)
	}
	if ali.RateLimitDelay != 12*time.Second {
		t.Errorf("aliexpress RateLimitDelay = %v, want 12s", ali.RateLimitDelay)
	}

	ebay := cfg.Crawl.SiteCrawl("ebay")
	if ebay.RateCapacity != cfg.Crawl.RateCapacity {
		t.Errorf("ebay RateCapacity = %v, want default %v", ebay.RateCapacity, cfg.Crawl.RateCapacity)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, _ := Load()
	cfg.Crawl.JitterFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("jitter fraction above 1 should fail validation")
	}

	cfg, _ = Load()
	cfg.Jobs.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero workers should fail validation")
	}

	cfg, _ = Load()
	cfg.Jobs.OperationTimeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("negative operation timeout should fail validation")
	}
}
