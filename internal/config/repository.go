package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/logging"
	"github.com/dshills/hoverselect/internal/selection"
)

// Section is the table that holds the settings in a settings file.
const Section = "select_on_hover"

// Setting keys.
const (
	KeyPixelRadius    = "pixel_radius"
	KeyMapUnitRadius  = "mapunit_radius"
	KeyUnitMode       = "unit_mode"
	KeyRestrictMode   = "restrict_mode"
	KeySelectionMode  = "selection_mode"
	KeyShowRubberBand = "show_rubber_band"
	KeyCircleSegments = "circle_segments"
	KeyHoverDelayMs   = "hover_delay_ms"
)

// Repository loads and saves the settings record.
type Repository interface {
	Load() (Config, error)
	Save(Config) error
}

// MemoryRepository keeps the settings in memory.
type MemoryRepository struct {
	mu     sync.Mutex
	cfg    Config
	stored bool
	saves  int
}

// NewMemoryRepository creates an empty repository. Load returns defaults
// until the first Save.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load() (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stored {
		return Defaults(), nil
	}
	return r.cfg, nil
}

func (r *MemoryRepository) Save(c Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = c
	r.stored = true
	r.saves++
	return nil
}

// Saves returns how many times Save was called.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// Format is a settings file encoding.
type Format uint8

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatFor picks the encoding from the file extension. Unknown extensions
// use TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// ParseError reports a settings file that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FileRepository stores the settings in a TOML or YAML file.
type FileRepository struct {
	path   string
	format Format
	logger *logging.Logger
}

// NewFileRepository creates a repository for path. The format follows the
// extension.
func NewFileRepository(path string, logger *logging.Logger) *FileRepository {
	return &FileRepository{
		path:   path,
		format: FormatFor(path),
		logger: logging.OrNull(logger).WithComponent("config"),
	}
}

// Path returns the settings file path.
func (r *FileRepository) Path() string { return r.path }

// Load reads the settings. A missing file yields defaults. An unreadable
// or undecodable file yields defaults together with the error. A stored
// value of the wrong type or out of range is replaced by its default and
// logged.
func (r *FileRepository) Load() (Config, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Defaults(), fmt.Errorf("reading settings %s: %w", r.path, err)
	}

	doc := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		switch r.format {
		case FormatYAML:
			err = yaml.Unmarshal(data, &doc)
		default:
			err = toml.Unmarshal(data, &doc)
		}
		if err != nil {
			return Defaults(), &ParseError{Path: r.path, Err: err}
		}
	}

	section, _ := doc[Section].(map[string]any)
	return decodeSection(section, r.logger), nil
}

// Save writes the settings, replacing the file atomically.
func (r *FileRepository) Save(c Config) error {
	data, err := r.encode(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

type fileSection struct {
	PixelRadius    int     `toml:"pixel_radius" yaml:"pixel_radius"`
	MapUnitRadius  float64 `toml:"mapunit_radius" yaml:"mapunit_radius"`
	UnitMode       string  `toml:"unit_mode" yaml:"unit_mode"`
	RestrictMode   string  `toml:"restrict_mode" yaml:"restrict_mode"`
	SelectionMode  string  `toml:"selection_mode" yaml:"selection_mode"`
	ShowRubberBand bool    `toml:"show_rubber_band" yaml:"show_rubber_band"`
	CircleSegments int     `toml:"circle_segments" yaml:"circle_segments"`
	HoverDelayMs   int     `toml:"hover_delay_ms" yaml:"hover_delay_ms"`
}

type fileDoc struct {
	Section fileSection `toml:"select_on_hover" yaml:"select_on_hover"`
}

func (r *FileRepository) encode(c Config) ([]byte, error) {
	c, err := c.Normalize()
	if err != nil {
		return nil, err
	}
	doc := fileDoc{Section: fileSection{
		PixelRadius:    c.RadiusPixels,
		MapUnitRadius:  c.RadiusMapUnits,
		UnitMode:       c.UnitMode.String(),
		RestrictMode:   c.RestrictMode.String(),
		SelectionMode:  c.SelectionMode.String(),
		ShowRubberBand: c.ShowFeedbackOverlay,
		CircleSegments: c.CircleSegments,
		HoverDelayMs:   c.HoverDelayMs,
	}}

	var data []byte
	switch r.format {
	case FormatYAML:
		data, err = yaml.Marshal(doc)
	default:
		data, err = toml.Marshal(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return data, nil
}

// decodeSection reads each key independently so that one bad value does
// not discard the others.
func decodeSection(m map[string]any, logger *logging.Logger) Config {
	c := Defaults()
	if m == nil {
		return c
	}

	reject := func(key string, v any) {
		logger.WithField("key", key).Warn("ignoring stored value %v, using default", v)
	}

	if v, ok := m[KeyPixelRadius]; ok {
		if n, ok := asInt(v); ok && n >= 1 {
			c.RadiusPixels = n
		} else {
			reject(KeyPixelRadius, v)
		}
	}
	if v, ok := m[KeyMapUnitRadius]; ok {
		if f, ok := asFloat(v); ok && f > 0 && !math.IsInf(f, 0) {
			c.RadiusMapUnits = f
		} else {
			reject(KeyMapUnitRadius, v)
		}
	}
	if v, ok := m[KeyUnitMode]; ok {
		s, _ := v.(string)
		if mode, err := ParseUnitMode(s); err == nil {
			c.UnitMode = mode
		} else {
			reject(KeyUnitMode, v)
		}
	}
	if v, ok := m[KeyRestrictMode]; ok {
		s, _ := v.(string)
		if mode, err := ParseRestrictMode(s); err == nil {
			c.RestrictMode = mode
		} else {
			reject(KeyRestrictMode, v)
		}
	}
	if v, ok := m[KeySelectionMode]; ok {
		s, _ := v.(string)
		if mode, err := selection.ParseMode(s); err == nil {
			c.SelectionMode = mode
		} else {
			reject(KeySelectionMode, v)
		}
	}
	if v, ok := m[KeyShowRubberBand]; ok {
		if b, ok := asBool(v); ok {
			c.ShowFeedbackOverlay = b
		} else {
			reject(KeyShowRubberBand, v)
		}
	}
	if v, ok := m[KeyCircleSegments]; ok {
		if n, ok := asInt(v); ok && n >= geom.MinCircleSegments {
			c.CircleSegments = min(n, geom.MaxCircleSegments)
		} else {
			reject(KeyCircleSegments, v)
		}
	}
	if v, ok := m[KeyHoverDelayMs]; ok {
		if n, ok := asInt(v); ok && n >= 0 {
			c.HoverDelayMs = min(n, MaxHoverDelayMs)
		} else {
			reject(KeyHoverDelayMs, v)
		}
	}
	return c
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		return p, err == nil
	}
	return false, false
}
