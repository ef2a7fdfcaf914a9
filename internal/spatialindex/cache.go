// Package spatialindex keeps one R-tree per vector layer for bounding-box
// candidate lookup.
//
// The cache knows nothing about which layers should be indexed. Callers pass
// the layer ids to Rebuild, which always discards every existing entry
// before building new ones.
package spatialindex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/rtree"

	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/logging"
)

// Source iterates a layer's features. host.LayerStore satisfies it.
type Source interface {
	Features(layerID string, filter *geom.Rect, fn func(host.Feature) bool) error
}

// IndexBuildError reports a layer whose index could not be built.
type IndexBuildError struct {
	LayerID string
	Err     error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build index for layer %s: %v", e.LayerID, e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// Index is the R-tree for one layer.
type Index struct {
	tree    rtree.RTreeG[int64]
	skipped int
}

// Len returns the number of indexed features.
func (ix *Index) Len() int { return ix.tree.Len() }

// Skipped returns the number of features left out for lacking a usable
// geometry.
func (ix *Index) Skipped() int { return ix.skipped }

// Search returns the ids whose bounding boxes intersect bbox.
func (ix *Index) Search(bbox geom.Rect) []int64 {
	if bbox.IsEmpty() {
		return nil
	}
	var ids []int64
	ix.tree.Search(
		[2]float64{bbox.Min.X, bbox.Min.Y},
		[2]float64{bbox.Max.X, bbox.Max.Y},
		func(_, _ [2]float64, id int64) bool {
			ids = append(ids, id)
			return true
		},
	)
	return ids
}

// Build indexes every feature of a layer. Features without geometry or with
// non-finite coordinates are skipped.
func Build(src Source, layerID string) (ix *Index, err error) {
	defer func() {
		if r := recover(); r != nil {
			ix = nil
			err = &IndexBuildError{LayerID: layerID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	ix = &Index{}
	iterErr := src.Features(layerID, nil, func(f host.Feature) bool {
		b := f.Geometry.Bounds()
		if b.IsEmpty() || !b.IsFinite() {
			ix.skipped++
			return true
		}
		ix.tree.Insert(
			[2]float64{b.Min.X, b.Min.Y},
			[2]float64{b.Max.X, b.Max.Y},
			f.ID,
		)
		return true
	})
	if iterErr != nil {
		return nil, &IndexBuildError{LayerID: layerID, Err: iterErr}
	}
	return ix, nil
}

// Cache maps layer ids to their indexes.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Index
	logger  *logging.Logger
}

// New creates an empty cache. A nil logger discards warnings.
func New(logger *logging.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*Index),
		logger:  logging.OrNull(logger).WithComponent("spatialindex"),
	}
}

// RebuildResult summarizes a rebuild.
type RebuildResult struct {
	// Indexed is the number of layers that now have an index.
	Indexed int
	// Failed holds one *IndexBuildError per layer that was left out.
	Failed []error
}

// Rebuild clears the cache and indexes each listed layer. A layer whose
// build fails is omitted and logged; the remaining layers are still built.
func (c *Cache) Rebuild(src Source, layerIDs []string) RebuildResult {
	fresh := make(map[string]*Index, len(layerIDs))
	var res RebuildResult

	for _, id := range layerIDs {
		ix, err := Build(src, id)
		if err != nil {
			c.logger.WithField("layer", id).Warn("spatial index not built: %v", err)
			res.Failed = append(res.Failed, err)
			continue
		}
		fresh[id] = ix
	}
	res.Indexed = len(fresh)

	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()

	c.logger.Debug("rebuilt %d of %d layer indexes", res.Indexed, len(layerIDs))
	return res
}

// Lookup returns candidate ids for layerID within bbox. The second result
// is false when the layer has no index and the caller must scan instead.
func (c *Cache) Lookup(layerID string, bbox geom.Rect) ([]int64, bool) {
	c.mu.RLock()
	ix, ok := c.entries[layerID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ix.Search(bbox), true
}

// Has reports whether layerID is indexed.
func (c *Cache) Has(layerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[layerID]
	return ok
}

// Len returns the number of indexed layers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LayerIDs returns the indexed layer ids, sorted.
func (c *Cache) LayerIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear drops every index.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Index)
	c.mu.Unlock()
}
