package postgres

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestConfigValidate_RejectsIdleAboveOpen(t *testing.T) {
	cfg := Config{
		URL:          "postgres://scriptforge@localhost:5432/scriptforge",
		PingTimeout:  time.Second,
		MaxOpenConns: 2,
		MaxIdleConns: 5,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() expected error for idle > open")
	}
}
