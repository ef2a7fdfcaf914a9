// Package plugin is the lifecycle glue of the hover selection tool. A Shell
// owns the configuration panel and the engine, persists every panel edit,
// reloads settings edited outside the process and runs optional Lua hooks.
package plugin

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/engine"
	"github.com/dshills/hoverselect/internal/event"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/logging"
	"github.com/dshills/hoverselect/internal/panel"
	"github.com/dshills/hoverselect/internal/script"
)

// Status messages shown by the shell.
const (
	RebuiltMessage         = "Spatial indexes rebuilt successfully"
	RebuiltMessageDuration = 3000 * time.Millisecond
	ClearedMessageDuration = 2000 * time.Millisecond
)

var (
	// ErrNotInitialized is returned before Init and after Unload.
	ErrNotInitialized = errors.New("plugin not initialized")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("plugin already initialized")
)

// InitError reports the component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Options configures a Shell.
type Options struct {
	// Repository stores the settings. Defaults to an in-memory repository.
	Repository config.Repository

	// SettingsPath, when set, is watched for external edits.
	SettingsPath string

	// WatchDelay overrides config.DefaultWatchDelay.
	WatchDelay time.Duration

	// ScriptPath, when set, names a Lua hook script.
	ScriptPath string

	Logger        *logging.Logger
	EngineOptions []engine.Option
}

// Shell wires the panel, the engine and the settings store together.
type Shell struct {
	mu sync.Mutex

	svc    host.Services
	opts   Options
	logger *logging.Logger

	panel   *panel.Panel
	engine  *engine.Engine
	hooks   *script.Hooks
	watcher *config.Watcher
	subs    []*event.Subscription

	// settings is the last persisted record. It carries the settings the
	// panel does not show.
	settings config.Config
	loaded   bool
	active   bool
}

// New creates an uninitialized shell for the given host.
func New(svc host.Services, opts Options) *Shell {
	if opts.Repository == nil {
		opts.Repository = config.NewMemoryRepository()
	}
	if opts.WatchDelay <= 0 {
		opts.WatchDelay = config.DefaultWatchDelay
	}
	return &Shell{
		svc:      svc,
		opts:     opts,
		logger:   logging.OrNull(opts.Logger).WithComponent("plugin"),
		panel:    panel.New(),
		settings: config.Defaults(),
	}
}

// Panel returns the configuration panel.
func (s *Shell) Panel() *panel.Panel { return s.panel }

// Engine returns the engine, or nil before Init.
func (s *Shell) Engine() *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// Active reports whether the tool is switched on.
func (s *Shell) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Init loads the settings into the panel, creates the engine and builds the
// initial spatial indexes. A settings file that cannot be read is logged and
// defaults are used.
func (s *Shell) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return ErrAlreadyInitialized
	}

	cfg := s.loadSettings()
	s.panel.SetValues(panel.ValuesFrom(cfg))
	cfg = s.panel.Values().Apply(cfg)

	eopts := append([]engine.Option{engine.WithLogger(s.opts.Logger)}, s.opts.EngineOptions...)
	eng, err := engine.New(s.svc, cfg, eopts...)
	if err != nil {
		return &InitError{Component: "engine", Err: err}
	}

	var hooks *script.Hooks
	if s.opts.ScriptPath != "" {
		hooks, err = script.Load(s.opts.ScriptPath, s.opts.Logger)
		if err != nil {
			eng.Close()
			return &InitError{Component: "script", Err: err}
		}
	}

	var watcher *config.Watcher
	if s.opts.SettingsPath != "" {
		watcher, err = config.Watch(s.opts.SettingsPath, s.opts.WatchDelay, s.reloadFromWatcher, s.opts.Logger)
		if err != nil {
			if hooks != nil {
				hooks.Close()
			}
			eng.Close()
			return &InitError{Component: "settings watcher", Err: err}
		}
	}

	s.engine = eng
	s.hooks = hooks
	s.watcher = watcher
	s.settings = cfg
	s.subscribe()
	s.loaded = true

	rebuilt := eng.RebuildIndexes()
	s.logger.Info("SelectOnHover initialized: %d of %d layers indexed", rebuilt.Indexed, rebuilt.Eligible)
	return nil
}

func (s *Shell) subscribe() {
	s.subs = append(s.subs,
		s.panel.SubscribeTo(panel.NameRadiusChanged, s.onRadiusChanged),
		s.panel.SubscribeTo(panel.NameOptionsChanged, s.onOptionsChanged),
		s.panel.SubscribeTo(panel.NameFeedbackChanged, s.onFeedbackChanged),
		s.panel.SubscribeTo(panel.NameRebuildRequested, s.onRebuildRequested),
		s.panel.SubscribeTo(panel.NameClearRequested, s.onClearRequested),
		s.engine.Subscribe(func(ev event.Event) {
			s.logger.Debug("%s", event.String(ev))
		}),
	)
	if s.hooks != nil {
		s.subs = append(s.subs, s.hooks.Attach(s.engine)...)
	}
}

// Toggle switches the tool on or off. Switching on pushes the panel values
// into the engine, rebuilds the indexes and activates the engine.
func (s *Shell) Toggle(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotInitialized
	}
	if !active {
		s.engine.Deactivate()
		if s.active {
			s.logger.Info("Select on hover tool deactivated")
		}
		s.active = false
		return nil
	}

	cfg := s.panel.Values().Apply(s.settings)
	if err := s.engine.SetConfig(cfg); err != nil {
		return err
	}
	s.engine.RebuildIndexes()
	if err := s.engine.Activate(); err != nil {
		return err
	}
	s.active = true
	s.logger.Info("Select on hover tool activated")
	return nil
}

// Reload reads the settings again and applies them to the panel and the
// engine without saving.
func (s *Shell) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotInitialized
	}
	loaded := s.loadSettings()
	prev := s.panel.Values()
	s.panel.SetValues(panel.ValuesFrom(loaded))
	cfg := s.panel.Values().Apply(loaded)
	if err := s.engine.SetConfig(cfg); err != nil {
		s.panel.SetValues(prev)
		return err
	}
	s.settings = s.engine.Config()
	s.logger.Info("settings reloaded")
	return nil
}

func (s *Shell) reloadFromWatcher() {
	if err := s.Reload(); err != nil && !errors.Is(err, ErrNotInitialized) {
		s.logger.Warn("reloading settings: %v", err)
	}
}

// Unload saves the settings, switches the tool off and releases every
// resource. Init may be called again afterwards.
func (s *Shell) Unload() error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	saveErr := s.saveLocked()

	s.engine.Deactivate()
	s.active = false
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.engine.Close()
	if s.hooks != nil {
		s.hooks.Close()
		s.hooks = nil
	}
	watcher := s.watcher
	s.watcher = nil
	s.loaded = false
	s.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			s.logger.Warn("closing settings watcher: %v", err)
		}
	}
	s.logger.Info("SelectOnHover plugin unloaded")
	return saveErr
}

func (s *Shell) onRadiusChanged(ev event.Event) {
	rc, ok := ev.(panel.RadiusChanged)
	if !ok {
		return
	}
	s.withEngine(func(eng *engine.Engine) error {
		return eng.SetRadius(rc.UnitMode, rc.PixelRadius, rc.MapUnitRadius)
	})
}

func (s *Shell) onOptionsChanged(ev event.Event) {
	oc, ok := ev.(panel.OptionsChanged)
	if !ok {
		return
	}
	s.withEngine(func(eng *engine.Engine) error {
		return eng.SetOptions(oc.RestrictMode, oc.SelectionMode)
	})
}

func (s *Shell) onFeedbackChanged(ev event.Event) {
	fc, ok := ev.(panel.FeedbackChanged)
	if !ok {
		return
	}
	s.withEngine(func(eng *engine.Engine) error {
		return eng.SetShowFeedback(fc.Show)
	})
}

// withEngine applies a panel edit to the engine and persists the panel.
func (s *Shell) withEngine(apply func(*engine.Engine) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return
	}
	if err := apply(s.engine); err != nil {
		s.logger.Warn("applying panel change: %v", err)
	}
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("saving settings: %v", err)
	}
}

func (s *Shell) onRebuildRequested(event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return
	}
	s.logger.Info("Manually rebuilding spatial indexes...")
	s.engine.RebuildIndexes()
	s.showMessage(RebuiltMessage, RebuiltMessageDuration)
}

func (s *Shell) onClearRequested(event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return
	}
	n := s.engine.ClearSelection()
	if n == 0 {
		return
	}
	s.showMessage(fmt.Sprintf("Cleared selection (%d features)", n), ClearedMessageDuration)
	s.logger.Info("Cleared selection: %d features", n)
}

func (s *Shell) showMessage(text string, d time.Duration) {
	if s.svc.Status != nil {
		s.svc.Status.ShowTransientMessage(text, d)
	}
}

func (s *Shell) loadSettings() config.Config {
	cfg, err := s.opts.Repository.Load()
	if err != nil {
		s.logger.Warn("loading settings, using defaults: %v", err)
	}
	if norm, nerr := cfg.Normalize(); nerr == nil {
		return norm
	}
	s.logger.Warn("stored settings are invalid, using defaults")
	return config.Defaults()
}

func (s *Shell) saveLocked() error {
	cfg := s.panel.Values().Apply(s.settings)
	if err := s.opts.Repository.Save(cfg); err != nil {
		return err
	}
	s.settings = cfg
	return nil
}
