package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/pathway/internal/llm"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/retry"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Empty(t, cfg.DSN)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, mode.FirstWins, cfg.AnswerPolicy)
	assert.True(t, cfg.AutoEvaluate)
	assert.Equal(t, 30*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, retry.DefaultPolicy(), cfg.Retry)
	assert.Equal(t, llm.ProviderNone, cfg.LLM.Provider)
	assert.Equal(t, "claude-haiku", cfg.LLM.Anthropic.Model)
}

func TestOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PATHWAY_DB_DRIVER":          "postgres",
		"PATHWAY_DB_DSN":             "postgres://localhost/pathway",
		"PATHWAY_LOG_LEVEL":          "debug",
		"PATHWAY_ANSWER_POLICY":      "last-wins",
		"PATHWAY_AUTO_EVALUATE":      "false",
		"PATHWAY_RETRY_MAX_ATTEMPTS": "5",
		"PATHWAY_RETRY_INITIAL_WAIT": "1s",
		"PATHWAY_LLM_PROVIDER":       "mock",
		"PATHWAY_OTEL_ENDPOINT":      "http://localhost:4318",
	})
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/pathway", cfg.DSN)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, mode.LastWins, cfg.AnswerPolicy)
	assert.False(t, cfg.AutoEvaluate)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialWait)
	assert.Equal(t, llm.ProviderMock, cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:4318", cfg.OTELEndpoint)
}

func TestInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":     {"PATHWAY_DB_DRIVER": "mysql"},
		"postgres no dsn":    {"PATHWAY_DB_DRIVER": "postgres"},
		"bad policy":         {"PATHWAY_ANSWER_POLICY": "best"},
		"zero attempts":      {"PATHWAY_RETRY_MAX_ATTEMPTS": "0"},
		"bad timeout":        {"PATHWAY_ANALYSIS_TIMEOUT": "soon"},
		"llm without key":    {"PATHWAY_LLM_PROVIDER": "openai"},
		"unknown llm vendor": {"PATHWAY_LLM_PROVIDER": "acme"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(vars)
			assert.Error(t, err)
		})
	}
}
