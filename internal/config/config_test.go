package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsMissingListenAddr(t *testing.T) {
	cfg := Default()
	cfg.Signaling.ListenAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty listen_addr")
	}
}

func TestValidateRejectsBadPath(t *testing.T) {
	cfg := Default()
	cfg.Signaling.Path = "signaling"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for path missing leading slash")
	}
}

func TestValidateRejectsNonPositiveTimeouts(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.InviteTTLSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero invite ttl")
	}
}

func TestEnsureCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for missing file")
	}
	if cfg != Default() {
		t.Fatalf("expected default config, got %+v", cfg)
	}

	again, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure (second call): %v", err)
	}
	if created {
		t.Fatal("expected created=false for existing file")
	}
	if again != cfg {
		t.Fatalf("expected same config on reload, got %+v vs %+v", again, cfg)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Timeouts.InviteTTLSeconds = 45
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Timeouts.InviteTTL().Seconds() != 45 {
		t.Fatalf("expected 45s invite ttl, got %v", loaded.Timeouts.InviteTTL())
	}
}
