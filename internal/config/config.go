// Package config holds the hover selection settings record, validates it at
// the boundary, and persists it.
//
// A Config that has passed Normalize always satisfies: RadiusPixels >= 1,
// RadiusMapUnits is positive and finite, CircleSegments >= 3,
// HoverDelayMs >= 0, and every enum holds a known value.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/selection"
)

// UnitMode selects how the hover radius is measured.
type UnitMode uint8

const (
	// UnitPixels measures the radius in screen pixels.
	UnitPixels UnitMode = iota
	// UnitMapUnits measures the radius in project map units.
	UnitMapUnits
)

var unitModeNames = [...]string{
	UnitPixels:   "pixels",
	UnitMapUnits: "map_units",
}

func (m UnitMode) String() string {
	if int(m) < len(unitModeNames) {
		return unitModeNames[m]
	}
	return fmt.Sprintf("UnitMode(%d)", uint8(m))
}

// Valid reports whether m is a known unit mode.
func (m UnitMode) Valid() bool { return int(m) < len(unitModeNames) }

// ParseUnitMode parses "pixels" or "map_units". "mapunits" and "map units"
// are accepted as well.
func ParseUnitMode(s string) (UnitMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	switch name {
	case "pixels", "pixel", "px":
		return UnitPixels, nil
	case "map_units", "mapunits":
		return UnitMapUnits, nil
	}
	return UnitPixels, &InvalidValueError{Field: "unit_mode", Value: s, Reason: "want pixels or map_units"}
}

func (m UnitMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, &InvalidValueError{Field: "unit_mode", Value: uint8(m), Reason: "unknown unit mode"}
	}
	return []byte(m.String()), nil
}

func (m *UnitMode) UnmarshalText(b []byte) error {
	v, err := ParseUnitMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// RestrictMode selects which layers a hover may select from.
type RestrictMode uint8

const (
	// RestrictAll uses every selectable vector layer.
	RestrictAll RestrictMode = iota
	// RestrictVisible additionally requires the layer to be visible.
	RestrictVisible
	// RestrictActive uses only the canvas' current layer.
	RestrictActive
)

var restrictModeNames = [...]string{
	RestrictAll:     "all",
	RestrictVisible: "visible",
	RestrictActive:  "active",
}

func (m RestrictMode) String() string {
	if int(m) < len(restrictModeNames) {
		return restrictModeNames[m]
	}
	return fmt.Sprintf("RestrictMode(%d)", uint8(m))
}

// Valid reports whether m is a known restrict mode.
func (m RestrictMode) Valid() bool { return int(m) < len(restrictModeNames) }

// ParseRestrictMode parses "all", "visible" or "active".
func ParseRestrictMode(s string) (RestrictMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range restrictModeNames {
		if n == name {
			return RestrictMode(i), nil
		}
	}
	return RestrictAll, &InvalidValueError{Field: "restrict_mode", Value: s, Reason: "want all, visible or active"}
}

func (m RestrictMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, &InvalidValueError{Field: "restrict_mode", Value: uint8(m), Reason: "unknown restrict mode"}
	}
	return []byte(m.String()), nil
}

func (m *RestrictMode) UnmarshalText(b []byte) error {
	v, err := ParseRestrictMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Config is the complete set of tool settings. It is a value: components
// replace it wholesale instead of mutating fields in place.
type Config struct {
	RadiusPixels        int
	RadiusMapUnits      float64
	UnitMode            UnitMode
	CircleSegments      int
	RestrictMode        RestrictMode
	SelectionMode       selection.Mode
	ShowFeedbackOverlay bool
	HoverDelayMs        int
}

// Default values.
const (
	DefaultRadiusPixels   = 20
	DefaultRadiusMapUnits = 10.0
	DefaultCircleSegments = 32
	DefaultHoverDelayMs   = 15

	// MaxHoverDelayMs caps the debounce interval at one minute.
	MaxHoverDelayMs = 60000
)

// Defaults returns the settings used when nothing is stored.
func Defaults() Config {
	return Config{
		RadiusPixels:        DefaultRadiusPixels,
		RadiusMapUnits:      DefaultRadiusMapUnits,
		UnitMode:            UnitPixels,
		CircleSegments:      DefaultCircleSegments,
		RestrictMode:        RestrictVisible,
		SelectionMode:       selection.ModeAdd,
		ShowFeedbackOverlay: true,
		HoverDelayMs:        DefaultHoverDelayMs,
	}
}

// InvalidValueError reports a setting rejected at the configuration
// boundary.
type InvalidValueError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Normalize clamps out-of-range integers and rejects values that cannot be
// repaired. On error the returned Config must not be used.
func (c Config) Normalize() (Config, error) {
	if c.RadiusPixels < 1 {
		c.RadiusPixels = 1
	}
	c.CircleSegments = min(max(c.CircleSegments, geom.MinCircleSegments), geom.MaxCircleSegments)
	c.HoverDelayMs = min(max(c.HoverDelayMs, 0), MaxHoverDelayMs)

	switch {
	case !(c.RadiusMapUnits > 0) || math.IsInf(c.RadiusMapUnits, 0):
		return c, &InvalidValueError{Field: "mapunit_radius", Value: c.RadiusMapUnits, Reason: "must be positive and finite"}
	case !c.UnitMode.Valid():
		return c, &InvalidValueError{Field: "unit_mode", Value: uint8(c.UnitMode), Reason: "unknown unit mode"}
	case !c.RestrictMode.Valid():
		return c, &InvalidValueError{Field: "restrict_mode", Value: uint8(c.RestrictMode), Reason: "unknown restrict mode"}
	case !c.SelectionMode.Valid():
		return c, &InvalidValueError{Field: "selection_mode", Value: uint8(c.SelectionMode), Reason: "unknown selection mode"}
	}
	return c, nil
}

// HoverDelay returns the debounce interval.
func (c Config) HoverDelay() time.Duration {
	return time.Duration(min(max(c.HoverDelayMs, 0), MaxHoverDelayMs)) * time.Millisecond
}

// QueryRadius returns the hover radius in project map units for the given
// canvas scale. It reports false when the radius is not usable, which
// happens in pixel mode while the canvas scale is unset.
func (c Config) QueryRadius(mapUnitsPerPixel float64) (float64, bool) {
	if c.UnitMode == UnitMapUnits {
		return c.RadiusMapUnits, c.RadiusMapUnits > 0
	}
	r, ok := geom.PixelsToMapUnits(float64(c.RadiusPixels), mapUnitsPerPixel)
	return r, ok && r > 0
}
