// Package memhost is an in-memory implementation of the host collaborators.
// It backs the terminal demo and the engine tests, and can inject failures
// per layer or per feature.
package memhost

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/selection"
)

type layer struct {
	info     host.LayerInfo
	features []host.Feature
	byID     map[int64]int
	selected selection.Set
	visible  bool
}

// Store holds layers, their features, selection and visibility. It
// implements host.LayerStore and host.LayerTree.
type Store struct {
	mu     sync.RWMutex
	order  []string
	layers map[string]*layer

	failScan   map[string]error
	panicScan  map[string]bool
	failFetch  map[string]map[int64]error
	failCommit map[string]error

	scans   int
	fetches int

	listeners listenerList
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		layers:     make(map[string]*layer),
		failScan:   make(map[string]error),
		panicScan:  make(map[string]bool),
		failFetch:  make(map[string]map[int64]error),
		failCommit: make(map[string]error),
	}
}

var (
	_ host.LayerStore = (*Store)(nil)
	_ host.LayerTree  = (*Store)(nil)
)

// LayerSpec describes a layer to add.
type LayerSpec struct {
	// ID is generated when empty.
	ID         string
	Name       string
	Kind       host.LayerKind
	CRS        crs.CRS
	Hidden     bool
	Locked     bool // not selectable
	Features   []host.Feature
	SelectedID []int64
}

// AddLayer adds a layer at the end of the iteration order and returns its
// id. Feature ids must be unique within the layer.
func (s *Store) AddLayer(spec LayerSpec) (string, error) {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	l := &layer{
		info: host.LayerInfo{
			ID:         id,
			Name:       spec.Name,
			Kind:       spec.Kind,
			CRS:        spec.CRS,
			Selectable: !spec.Locked,
		},
		features: make([]host.Feature, len(spec.Features)),
		byID:     make(map[int64]int, len(spec.Features)),
		selected: selection.NewSet(spec.SelectedID...),
		visible:  !spec.Hidden,
	}
	if l.info.Name == "" {
		l.info.Name = id
	}
	for i, f := range spec.Features {
		if _, dup := l.byID[f.ID]; dup {
			return "", fmt.Errorf("layer %s: duplicate feature id %d", l.info.Name, f.ID)
		}
		l.features[i] = f
		l.byID[f.ID] = i
	}

	s.mu.Lock()
	if _, exists := s.layers[id]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("layer %s already exists", id)
	}
	s.layers[id] = l
	s.order = append(s.order, id)
	listeners := s.listeners.snapshot()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return id, nil
}

// MustAddLayer is AddLayer that panics on error. It is meant for tests and
// fixtures.
func (s *Store) MustAddLayer(spec LayerSpec) string {
	id, err := s.AddLayer(spec)
	if err != nil {
		panic(err)
	}
	return id
}

// RemoveLayer removes a layer.
func (s *Store) RemoveLayer(id string) error {
	s.mu.Lock()
	if _, ok := s.layers[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", host.ErrUnknownLayer, id)
	}
	delete(s.layers, id)
	for i, lid := range s.order {
		if lid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	listeners := s.listeners.snapshot()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnLayersChanged registers fn to run after a layer is added or removed.
// The returned func unregisters it.
func (s *Store) OnLayersChanged(fn func()) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.listeners.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners.remove(id)
	}
}

// SetVisible changes layer visibility in the layer tree.
func (s *Store) SetVisible(id string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers[id]; ok {
		l.visible = visible
	}
}

// SetSelectable changes the layer's selectable flag.
func (s *Store) SetSelectable(id string, selectable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers[id]; ok {
		l.info.Selectable = selectable
	}
}

// Layer returns one layer's description.
func (s *Store) Layer(id string) (host.LayerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return host.LayerInfo{}, false
	}
	return l.info, true
}

// Layers implements host.LayerStore.
func (s *Store) Layers() []host.LayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]host.LayerInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.layers[id].info)
	}
	return out
}

// IsVisible implements host.LayerTree.
func (s *Store) IsVisible(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	return ok && l.visible
}

// Features implements host.LayerStore.
func (s *Store) Features(id string, filter *geom.Rect, fn func(host.Feature) bool) error {
	s.mu.Lock()
	s.scans++
	l, ok := s.layers[id]
	failErr := s.failScan[id]
	panics := s.panicScan[id]
	var feats []host.Feature
	if ok {
		feats = append(feats, l.features...)
	}
	s.mu.Unlock()

	switch {
	case !ok:
		return fmt.Errorf("%w: %s", host.ErrUnknownLayer, id)
	case panics:
		panic(fmt.Sprintf("memhost: injected panic scanning layer %s", id))
	case failErr != nil:
		return failErr
	}

	for _, f := range feats {
		if filter != nil && !f.Geometry.Bounds().Intersects(*filter) {
			continue
		}
		if !fn(f) {
			break
		}
	}
	return nil
}

// FeatureByID implements host.LayerStore.
func (s *Store) FeatureByID(id string, fid int64) (host.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++

	l, ok := s.layers[id]
	if !ok {
		return host.Feature{}, fmt.Errorf("%w: %s", host.ErrUnknownLayer, id)
	}
	if err := s.failFetch[id][fid]; err != nil {
		return host.Feature{}, err
	}
	i, ok := l.byID[fid]
	if !ok {
		return host.Feature{}, fmt.Errorf("%w: %d in layer %s", host.ErrUnknownFeature, fid, id)
	}
	return l.features[i], nil
}

// SelectedIDs implements host.LayerStore.
func (s *Store) SelectedIDs(id string) (selection.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownLayer, id)
	}
	return l.selected.Clone(), nil
}

// SetSelectedIDs implements host.LayerStore.
func (s *Store) SetSelectedIDs(id string, ids selection.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[id]
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrUnknownLayer, id)
	}
	if err := s.failCommit[id]; err != nil {
		return err
	}
	l.selected = ids.Clone()
	return nil
}

// Selected returns the layer's selection in ascending order.
func (s *Store) Selected(id string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return nil
	}
	return l.selected.Sorted()
}

// FailScan makes Features fail for the layer. A nil err clears the fault.
func (s *Store) FailScan(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failScan, id)
		return
	}
	s.failScan[id] = err
}

// PanicOnScan makes Features panic for the layer.
func (s *Store) PanicOnScan(id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicScan[id] = on
}

// FailFetch makes FeatureByID fail for one feature.
func (s *Store) FailFetch(id string, fid int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFetch[id] == nil {
		s.failFetch[id] = make(map[int64]error)
	}
	s.failFetch[id][fid] = err
}

// FailCommit makes SetSelectedIDs fail for the layer.
func (s *Store) FailCommit(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failCommit, id)
		return
	}
	s.failCommit[id] = err
}

// Counters returns how many times Features and FeatureByID were called.
func (s *Store) Counters() (scans, fetches int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scans, s.fetches
}
