package llm

import (
	"testing"

	"github.com/caarlos0/env/v11"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PATHWAY_LLM_PROVIDER", "openai")
	t.Setenv("PATHWAY_OPENAI_API_KEY", "sk-test")
	t.Setenv("PATHWAY_LLM_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("PATHWAY_LLM_TIMEOUT", "10s")

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PATHWAY_"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("default model not applied: %q", cfg.OpenAI.Model)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Timeout.Seconds() != 10 {
		t.Errorf("retry/timeout = %+v / %v", cfg.Retry, cfg.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"none", Config{Provider: ProviderNone}, false},
		{"empty", Config{}, false},
		{"mock", Config{Provider: ProviderMock}, false},
		{"missing key", Config{Provider: ProviderGemini}, true},
		{"with key", Config{Provider: ProviderGemini, Gemini: GeminiConfig{APIKey: "k"}}, false},
		{"unknown", Config{Provider: "llama"}, true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestConfigDiscover(t *testing.T) {
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}

	cfg := DefaultConfig()
	if cfg.Discover() {
		t.Fatal("nothing to discover")
	}

	t.Setenv("GEMINI_API_KEY", "g-key")
	if !cfg.Discover() || cfg.Provider != ProviderGemini || cfg.Gemini.APIKey != "g-key" {
		t.Errorf("cfg after discover = %+v", cfg)
	}

	explicit := Config{Provider: ProviderMock}
	if !explicit.Discover() || explicit.Provider != ProviderMock {
		t.Error("an explicit provider must not be replaced")
	}
}
