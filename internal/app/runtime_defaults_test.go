package app

import (
	"strings"
	"testing"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if cfg.Auth.JWT.Secret == "" {
		t.Fatal("expected JWT secret to be generated")
	}
	if !generated["auth.jwt.secret"] {
		t.Fatalf("expected generated map to include jwt secret: %#v", generated)
	}
	if cfg.Maintenance.Trigger.Secret != "" {
		t.Fatalf("did not expect a maintenance secret to be generated, got %q", cfg.Maintenance.Trigger.Secret)
	}
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)

	generated, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if len(generated) != 0 {
		t.Fatalf("expected no keys generated, got %#v", generated)
	}
	if cfg.Auth.JWT.Secret != strings.Repeat("a", 10) {
		t.Fatal("expected existing secret to be preserved")
	}
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	if err == nil || !strings.Contains(err.Error(), "config is nil") {
		t.Fatalf("expected nil config error, got %v", err)
	}
}
