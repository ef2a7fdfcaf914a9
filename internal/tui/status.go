package tui

import (
	"sync"
	"time"

	"github.com/dshills/hoverselect/internal/host"
)

// StatusLine holds the transient message shown on the bottom row.
type StatusLine struct {
	mu      sync.Mutex
	text    string
	until   time.Time
	timer   *time.Timer
	now     func() time.Time
	expired func()
}

var _ host.StatusSink = (*StatusLine)(nil)

// NewStatusLine creates a status line. expired, when set, runs after a
// message times out so the screen can be redrawn.
func NewStatusLine(expired func()) *StatusLine {
	return &StatusLine{now: time.Now, expired: expired}
}

// ShowTransientMessage implements host.StatusSink.
func (s *StatusLine) ShowTransientMessage(text string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.text = text
	s.until = s.now().Add(d)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.expired != nil && d > 0 {
		s.timer = time.AfterFunc(d, s.expired)
	}
}

// Current returns the message if it has not timed out yet.
func (s *StatusLine) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.text == "" || !s.now().Before(s.until) {
		return "", false
	}
	return s.text, true
}

// Stop cancels the pending expiry.
func (s *StatusLine) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
