package engine

import (
	"fmt"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/event"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/selection"
)

// runGuarded runs the pipeline for screen point pt. Nothing raised by a
// host collaborator escapes it.
func (e *Engine) runGuarded(pt geom.Point) (done event.SelectionCompleted) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("hover pipeline aborted: panic: %v", r)
		}
		done.Duration = e.now().Sub(start)
		e.stats.Runs++
		e.stats.LastTotal = done.Total
		e.stats.LastLayers = done.Layers
		e.stats.LastDuration = done.Duration
	}()

	e.stats.LastSkipped = 0
	total, layers := e.run(pt)
	return event.SelectionCompleted{Total: total, Layers: layers}
}

func (e *Engine) run(pt geom.Point) (total, layers int) {
	canvas := e.svc.Canvas
	center := canvas.ScreenToMap(pt)

	radius, ok := e.cfg.QueryRadius(canvas.MapUnitsPerPixel())
	if !ok {
		e.logger.Debug("no usable radius at scale %g, nothing selected", canvas.MapUnitsPerPixel())
		return 0, 0
	}

	circle := geom.BuildCircle(center, radius, e.cfg.CircleSegments)
	if e.cfg.ShowFeedbackOverlay && e.svc.Overlay != nil {
		e.svc.Overlay.SetGeometry(circle)
	}

	project := canvas.ProjectCRS()
	eligible := e.eligibleLocked()
	for _, info := range eligible {
		n, err := e.processLayer(info, circle, project)
		if err != nil {
			e.stats.LastSkipped++
			e.logger.WithField("layer", info.Name).Warn("layer skipped: %v", err)
			continue
		}
		total += n
	}

	if total > 0 && e.svc.Status != nil {
		e.svc.Status.ShowTransientMessage(fmt.Sprintf("Selected %d feature(s)", total), SelectedMessageDuration)
	}
	e.logger.Debug("hover at %.3f,%.3f r=%g selected %d in %d layers", center.X, center.Y, radius, total, len(eligible))
	return total, len(eligible)
}

// eligibleLocked lists the selectable vector layers allowed by the
// restrict mode, in store order.
func (e *Engine) eligibleLocked() []host.LayerInfo {
	current, hasCurrent := e.svc.Canvas.CurrentLayer()
	if e.cfg.RestrictMode == config.RestrictActive && !hasCurrent {
		return nil
	}

	var out []host.LayerInfo
	for _, info := range e.svc.Layers.Layers() {
		if info.Kind != host.LayerVector || !info.Selectable {
			continue
		}
		switch e.cfg.RestrictMode {
		case config.RestrictVisible:
			if !e.svc.Tree.IsVisible(info.ID) {
				continue
			}
		case config.RestrictActive:
			if info.ID != current {
				continue
			}
		}
		out = append(out, info)
	}
	return out
}

// processLayer selects the features of one layer under circle and returns
// how many were found.
func (e *Engine) processLayer(info host.LayerInfo, circle geom.Geometry, project crs.CRS) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, &LayerPanicError{LayerID: info.ID, Value: r}
		}
	}()

	query := circle
	if !info.CRS.Equal(project) {
		query, err = e.registry.Transform(circle, project, info.CRS)
		if err != nil {
			return 0, err
		}
	}

	found, err := e.verify(info, query)
	if err != nil {
		return 0, err
	}
	if found.Len() == 0 {
		return 0, nil
	}

	store := e.svc.Layers
	current, err := store.SelectedIDs(info.ID)
	if err != nil {
		return 0, &SelectionCommitError{LayerID: info.ID, Err: err}
	}
	next := selection.Apply(e.cfg.SelectionMode, current, found)
	if err := store.SetSelectedIDs(info.ID, next); err != nil {
		return 0, &SelectionCommitError{LayerID: info.ID, Err: err}
	}
	return found.Len(), nil
}

// verify returns the ids of features that exactly intersect query. Indexed
// layers are narrowed with the R-tree; others are scanned with a bounding
// box filter.
func (e *Engine) verify(info host.LayerInfo, query geom.Geometry) (selection.Set, error) {
	bbox := query.Bounds()
	found := selection.NewSet()
	store := e.svc.Layers

	if candidates, ok := e.cache.Lookup(info.ID, bbox); ok {
		for _, id := range candidates {
			f, err := store.FeatureByID(info.ID, id)
			if err != nil {
				e.logger.WithField("layer", info.Name).Debug("candidate skipped: %v",
					&FeatureFetchError{LayerID: info.ID, FeatureID: id, Err: err})
				continue
			}
			if !f.Geometry.IsEmpty() && geom.IntersectsExact(f.Geometry, query) {
				found.Add(id)
			}
		}
		return found, nil
	}

	err := store.Features(info.ID, &bbox, func(f host.Feature) bool {
		if f.Geometry.IsEmpty() || !f.Geometry.Bounds().Intersects(bbox) {
			return true
		}
		if geom.IntersectsExact(f.Geometry, query) {
			found.Add(f.ID)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan layer %s: %w", info.ID, err)
	}
	return found, nil
}
