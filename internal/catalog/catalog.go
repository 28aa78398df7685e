// Package catalog loads scenario definitions from YAML files and serves them
// read-only to the engine.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/store"
)

// parseWorkers bounds concurrent file parsing.
const parseWorkers = 8

// Catalog is an in-memory scenario set. It implements store.ScenarioRepo.
type Catalog struct {
	mu        sync.RWMutex
	scenarios map[string]*model.Scenario
	logger    *slog.Logger
}

var _ store.ScenarioRepo = (*Catalog)(nil)

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used while loading.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		scenarios: make(map[string]*model.Scenario),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LoadDir loads every *.yaml and *.yml file in dir and its immediate
// subdirectories.
func (c *Catalog) LoadDir(ctx context.Context, dir string) error {
	return c.LoadFS(ctx, os.DirFS(dir))
}

// LoadFS loads scenario files from fsys. Files are parsed concurrently; the
// catalog is only updated when every file is valid.
func (c *Catalog) LoadFS(ctx context.Context, fsys fs.FS) error {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*/*.yaml", "*/*.yml"} {
		matches, err := fs.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("glob %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)

	parsed := make([]*model.Scenario, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseWorkers)
	for i, name := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sc, err := parseFile(fsys, name)
			if err != nil {
				return err
			}
			parsed[i] = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[string]string, len(parsed))
	for i, sc := range parsed {
		if prev, dup := seen[sc.ID]; dup {
			return fmt.Errorf("scenario %q defined in both %s and %s", sc.ID, prev, files[i])
		}
		seen[sc.ID] = files[i]
	}

	c.mu.Lock()
	for _, sc := range parsed {
		c.scenarios[sc.ID] = sc
	}
	c.mu.Unlock()

	c.logger.Info("scenarios loaded", "count", len(parsed), "files", len(files))
	return nil
}

func parseFile(fsys fs.FS, name string) (*model.Scenario, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var sc model.Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if sc.ID == "" {
		sc.ID = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	if err := Prepare(&sc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &sc, nil
}

// Add validates sc and adds a copy of it, replacing any scenario with the
// same id.
func (c *Catalog) Add(sc *model.Scenario) error {
	cp := sc.Clone()
	if err := Prepare(cp); err != nil {
		return err
	}
	c.mu.Lock()
	c.scenarios[cp.ID] = cp
	c.mu.Unlock()
	return nil
}

// GetScenario returns a copy of the scenario.
func (c *Catalog) GetScenario(_ context.Context, id string) (*model.Scenario, error) {
	c.mu.RLock()
	sc, ok := c.scenarios[id]
	c.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("scenario", id)
	}
	return sc.Clone(), nil
}

// ListScenarios returns copies of all scenarios ordered by id.
func (c *Catalog) ListScenarios(_ context.Context) ([]*model.Scenario, error) {
	c.mu.RLock()
	out := make([]*model.Scenario, 0, len(c.scenarios))
	for _, sc := range c.scenarios {
		out = append(out, sc.Clone())
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b *model.Scenario) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}
