package config

import (
	"testing"
	"time"
)

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("ADDR", "")
	t.Setenv("VIEW_FLUSH_INTERVAL", "")
	t.Setenv("VIEW_DEDUP_TTL", "")
	t.Setenv("S3_PRIVATE_BUCKET", "")
	t.Setenv("S3_PUBLIC_BUCKET", "")

	cfg := Load()

	if cfg.Addr != ":9999" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":9999")
	}
	if cfg.ViewFlushInterval != 5*time.Minute {
		t.Fatalf("ViewFlushInterval: got %v, want %v", cfg.ViewFlushInterval, 5*time.Minute)
	}
	if cfg.ViewDedupTTL != 24*time.Hour {
		t.Fatalf("ViewDedupTTL: got %v, want %v", cfg.ViewDedupTTL, 24*time.Hour)
	}
	if cfg.S3PrivateBucket != "pix-private-originals" {
		t.Fatalf("S3PrivateBucket: got %q", cfg.S3PrivateBucket)
	}
	if cfg.S3PublicBucket != "pix-public-assets" {
		t.Fatalf("S3PublicBucket: got %q", cfg.S3PublicBucket)
	}
	if cfg.DownloadURLTTL != 10*time.Minute {
		t.Fatalf("DownloadURLTTL: got %v", cfg.DownloadURLTTL)
	}
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("ADDR", ":8080")
	t.Setenv("VIEW_FLUSH_INTERVAL", "30s")
	t.Setenv("VIEW_DEDUP_TTL", "1h")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PUBLIC_ASSET_BASE", "https://assets.example.com/")

	cfg := Load()

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.ViewFlushInterval != 30*time.Second {
		t.Fatalf("ViewFlushInterval: got %v, want 30s", cfg.ViewFlushInterval)
	}
	if cfg.ViewDedupTTL != time.Hour {
		t.Fatalf("ViewDedupTTL: got %v, want 1h", cfg.ViewDedupTTL)
	}
	if !cfg.KafkaEnabled {
		t.Fatal("KafkaEnabled should be true")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers: got %v", cfg.KafkaBrokers)
	}
	// 尾部斜杠要被去掉，拼 URL 时才不会出现双斜杠
	if cfg.PublicAssetBase != "https://assets.example.com" {
		t.Fatalf("PublicAssetBase: got %q", cfg.PublicAssetBase)
	}
}

func TestLoadIgnoresInvalidDurations(t *testing.T) {
	t.Setenv("VIEW_FLUSH_INTERVAL", "not-a-duration")
	t.Setenv("VIEW_DEDUP_TTL", "-5m")

	cfg := Load()

	if cfg.ViewFlushInterval != 5*time.Minute {
		t.Fatalf("invalid duration should keep default, got %v", cfg.ViewFlushInterval)
	}
	if cfg.ViewDedupTTL != 24*time.Hour {
		t.Fatalf("negative ttl should keep default, got %v", cfg.ViewDedupTTL)
	}
}
