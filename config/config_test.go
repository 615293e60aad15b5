package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file to be written: %v", err)
	}
	if cfg.RPCAddress == "" || cfg.DataDir == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Currency != "LSK" {
		t.Fatalf("expected LSK default, got %q", cfg.Currency)
	}
	if cfg.Arbitrator == "" {
		t.Fatalf("default config must name an arbitrator")
	}

	// the written default must itself load cleanly
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Arbitrator != cfg.Arbitrator {
		t.Fatalf("reload mismatch: %q vs %q", reloaded.Arbitrator, cfg.Arbitrator)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "Arbitrator = \"desk\"\nFeeBps = 250\nFeeTreasury = \"treasury\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:8645" {
		t.Fatalf("rpc default not applied: %q", cfg.RPCAddress)
	}
	if cfg.FeeBps != 250 || cfg.FeeTreasury != "treasury" {
		t.Fatalf("explicit values lost: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Arbitrator: "desk"}
		cfg.applyDefaults()
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg := base()
	cfg.Currency = "DOGE"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected currency error")
	}

	cfg = base()
	cfg.FeeBps = 10_001
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected fee range error")
	}

	cfg = base()
	cfg.FeeBps = 100
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected treasury requirement error")
	}

	cfg = base()
	cfg.Arbitrator = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected arbitrator requirement error")
	}
}
