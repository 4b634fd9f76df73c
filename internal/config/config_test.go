package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	v := newTestViper()
	cfg := Load(v)
	if cfg.Thresholds.DomainAcceptScore != 70 {
		t.Fatalf("expected default domain accept score 70, got %d", cfg.Thresholds.DomainAcceptScore)
	}
	if cfg.Routing.Concurrency != 10 {
		t.Fatalf("expected default concurrency 10, got %d", cfg.Routing.Concurrency)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("expected default llm provider openai, got %q", cfg.LLM.Provider)
	}
}

func TestEnvironmentOverridesDefault(t *testing.T) {
	v := newTestViper()
	v.SetEnvPrefix("RESOLVECO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	t.Setenv("RESOLVECO_LLM_MODEL", "gpt-4.1")
	cfg := Load(v)
	if cfg.LLM.Model != "gpt-4.1" {
		t.Fatalf("expected env var to override the default model, got %q", cfg.LLM.Model)
	}
}

func TestFlagPrecedenceOverEnvAndDefault(t *testing.T) {
	v := newTestViper()
	v.SetEnvPrefix("RESOLVECO")
	v.AutomaticEnv()
	t.Setenv("RESOLVECO_ROUTING_CONCURRENCY", "3")
	v.Set("routing.concurrency", 25) // simulates a bound flag explicitly set
	cfg := Load(v)
	if cfg.Routing.Concurrency != 25 {
		t.Fatalf("expected an explicitly set value to win over env, got %d", cfg.Routing.Concurrency)
	}
}

func TestValidateRejectsMissingModel(t *testing.T) {
	cfg := Load(newTestViper())
	cfg.LLM.Model = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for missing llm.model")
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Load(newTestViper())
	cfg.Thresholds.DomainAcceptScore = 150
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for an out-of-range threshold")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := Load(newTestViper())
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected the default config to validate cleanly, got %v", err)
	}
}

func TestNewToleratesMissingConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	_ = os.Chdir(dir)
	if _, err := New(""); err != nil {
		t.Fatalf("expected a missing default config file to be tolerated, got %v", err)
	}
}
