// Package catalog keeps the loaded procedures together with their decision trees.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/vetlab/backend/internal/decision"
	"github.com/vetlab/backend/internal/metrics"
	"github.com/vetlab/backend/internal/procedure"
	"github.com/vetlab/backend/pkg/logger"
)

type entry struct {
	procedure *procedure.Procedure
	tree      *decision.Tree
}

// Catalog is safe for concurrent use. Trees are built once on Put/Reload and shared
// read-only by every session of that procedure; a reload never touches trees already
// handed out.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a catalog backed by dir. An empty dir gives an in-memory catalog filled with Put.
func New(dir string) *Catalog {
	return &Catalog{
		dir:     dir,
		entries: make(map[string]entry),
	}
}

// Put builds the tree for p and stores both, replacing any procedure with the same id.
func (c *Catalog) Put(p *procedure.Procedure) error {
	tree, err := decision.BuildTree(p)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[p.ID] = entry{procedure: p, tree: tree}
	size := len(c.entries)
	c.mu.Unlock()

	metrics.ProceduresLoaded.Set(float64(size))
	return nil
}

// Reload replaces the catalog contents with what is currently on disk. The old contents
// stay in place if the directory cannot be read.
func (c *Catalog) Reload() error {
	if c.dir == "" {
		return fmt.Errorf("catalog has no directory")
	}

	procedures, err := procedure.LoadDir(c.dir)
	if err != nil {
		return err
	}

	entries := make(map[string]entry, len(procedures))
	for _, p := range procedures {
		tree, err := decision.BuildTree(p)
		if err != nil {
			logger.Warn("Skipping procedure with malformed tree", zap.String("procedure_id", p.ID), zap.Error(err))
			continue
		}
		entries[p.ID] = entry{procedure: p, tree: tree}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	metrics.ProceduresLoaded.Set(float64(len(entries)))
	logger.Info("Procedure catalog reloaded", zap.Int("procedures", len(entries)))
	return nil
}

func (c *Catalog) Get(id string) (*procedure.Procedure, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	return e.procedure, ok
}

func (c *Catalog) Tree(id string) (*decision.Tree, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	return e.tree, ok
}

// List returns the procedures ordered by id.
func (c *Catalog) List() []*procedure.Procedure {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*procedure.Procedure, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.procedure)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
