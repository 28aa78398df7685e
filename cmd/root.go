package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathway/internal/backend"
	"github.com/abhisek/pathway/internal/catalog"
	"github.com/abhisek/pathway/internal/config"
	"github.com/abhisek/pathway/internal/engine"
	"github.com/abhisek/pathway/internal/store"
	"github.com/abhisek/pathway/internal/ui/report"
	"github.com/abhisek/pathway/scenarios"
)

var rootCmd = &cobra.Command{
	Use:   "pathway",
	Short: "Learning progress lifecycle engine",
	Long: "Pathway runs learning scenarios as per-user programs, records attempts\n" +
		"against their tasks and turns the interaction logs into evaluations.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "Database DSN or SQLite file path (overrides PATHWAY_DB_DSN)")
	pf.String("driver", "", "Storage driver: sqlite, postgres or memory (overrides PATHWAY_DB_DRIVER)")
	pf.String("catalog", "", "Directory of scenario YAML files (overrides PATHWAY_CATALOG_DIR)")
	pf.Bool("plain", false, "Disable colors and styling")

	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(abandonCmd)
	rootCmd.AddCommand(focusCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(programsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies flag overrides, flags
// taking priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DSN = v
	}
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		cfg.DBDriver = v
	}
	if v, _ := cmd.Flags().GetString("catalog"); v != "" {
		cfg.CatalogDir = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// openEngine builds the engine for a command. The caller closes it.
func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	return engine.Open(cmd.Context(), cfg, logger)
}

// openBackend opens storage alone, for commands that only read logs.
func openBackend(cmd *cobra.Command) (store.Backend, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	b, err := backend.FromConfig(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return b, nil
}

// loadCatalog loads the bundled scenarios plus the configured directory.
func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	c := catalog.New(catalog.WithLogger(newLogger(cfg)))
	if err := c.LoadFS(cmd.Context(), scenarios.FS); err != nil {
		return nil, err
	}
	if cfg.CatalogDir != "" {
		if err := c.LoadDir(cmd.Context(), cfg.CatalogDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func renderer(cmd *cobra.Command) report.Renderer {
	plain, _ := cmd.Flags().GetBool("plain")
	return report.Renderer{Plain: plain}
}

func closeEngine(e *engine.Engine) {
	_ = e.Close(context.Background())
}

func requireUser(cmd *cobra.Command) (string, error) {
	u, _ := cmd.Flags().GetString("user")
	if u == "" {
		return "", fmt.Errorf("--user is required")
	}
	return u, nil
}
