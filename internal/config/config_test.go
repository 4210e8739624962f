package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"EVENT_PAGE_SIZE", "RESOLVER_SCAN_LIMIT", "WITHDRAW_CONFIRM_ATTEMPTS", "WITHDRAW_CONFIRM_DELAY", "WITHDRAW_SETTLE_DELAY", "TON_NETWORK"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.EventPageSize != 50 {
		t.Errorf("EventPageSize = %d, want 50", cfg.EventPageSize)
	}
	if cfg.ResolverScanLimit != 50 {
		t.Errorf("ResolverScanLimit = %d, want 50", cfg.ResolverScanLimit)
	}
	if cfg.WithdrawConfirmAttempts != 5 {
		t.Errorf("WithdrawConfirmAttempts = %d, want 5", cfg.WithdrawConfirmAttempts)
	}
	if cfg.WithdrawConfirmDelay != time.Second {
		t.Errorf("WithdrawConfirmDelay = %v, want 1s", cfg.WithdrawConfirmDelay)
	}
	if cfg.WithdrawSettleDelay != 3*time.Second {
		t.Errorf("WithdrawSettleDelay = %v, want 3s", cfg.WithdrawSettleDelay)
	}
	if cfg.IsMainnet() {
		t.Error("default network should be testnet")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 7 * time.Second},
		{"1500ms", 1500 * time.Millisecond},
		{"4", 4 * time.Second},
		{"soon", 7 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvDuration("TEST_DURATION", 7*time.Second); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	if got := getEnvInt("TEST_INT", 3); got != 12 {
		t.Errorf("getEnvInt = %d, want 12", got)
	}
	t.Setenv("TEST_INT", "twelve")
	if got := getEnvInt("TEST_INT", 3); got != 3 {
		t.Errorf("getEnvInt fallback = %d, want 3", got)
	}
}

func TestIsMainnet(t *testing.T) {
	for net, want := range map[string]bool{"mainnet": true, "MainNet": true, "testnet": false} {
		c := &Config{TONNetwork: net}
		if c.IsMainnet() != want {
			t.Errorf("IsMainnet(%q) = %v", net, !want)
		}
	}
}
