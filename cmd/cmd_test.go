package cmd

import (
	"bytes"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PATHWAY_LLM_PROVIDER", "PATHWAY_DB_DRIVER", "PATHWAY_DB_DSN", "PATHWAY_CATALOG_DIR", "PATHWAY_OTEL_ENDPOINT",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("PATHWAY_LOG_LEVEL", "ERROR")
}

func TestVersionAndCatalog(t *testing.T) {
	isolateEnv(t)

	assert.Contains(t, run(t, "version"), "pathway")

	list := run(t, "catalog", "list")
	assert.Contains(t, list, "logic-check")
	assert.Contains(t, list, "fractions-practice")

	show := run(t, "catalog", "show", "fractions-practice", "--lang", "de")
	assert.Contains(t, show, "Bruchrechnen üben (fractions-practice, structured)")
	assert.Contains(t, show, "eq-1:")
}

func TestProgramFlow(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "pathway.db")
	common := []string{"--db", db, "--plain", "-u", "ana"}

	started := run(t, append([]string{"start", "logic-check"}, common...)...)
	programID := regexp.MustCompile(`program (\S+)`).FindStringSubmatch(started)
	require.Len(t, programID, 2, started)
	taskID := regexp.MustCompile(`(?m)^     (\S+)$`).FindStringSubmatch(started)
	require.Len(t, taskID, 2, started)

	submitted := run(t, append([]string{"submit", taskID[1], "-q", "q1", "-a", "B"}, common...)...)
	assert.Contains(t, submitted, "(correct)")
	assert.Contains(t, submitted, "Task started.")

	status := run(t, append([]string{"status", programID[1]}, common...)...)
	assert.Contains(t, status, "status active")
	assert.Contains(t, status, "0/1 tasks")

	programs := run(t, append([]string{"programs"}, common...)...)
	assert.Contains(t, programs, programID[1])

	abandoned := run(t, append([]string{"abandon", programID[1]}, common...)...)
	assert.Contains(t, abandoned, "abandoned")
}
