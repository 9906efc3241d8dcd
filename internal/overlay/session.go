// Package overlay holds the per-host widget state: the case currently shown,
// its evaluation and the display preferences that outlive it.
package overlay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// Subscription names the case sections the widget asks the host to deliver.
type Subscription struct {
	Sections []string `json:"sections"`
}

// DefaultSubscription is what the widget subscribes to.
func DefaultSubscription() Subscription {
	return Subscription{Sections: []string{"communication", "headers"}}
}

// PulseSource looks up the pulse of a case.
type PulseSource interface {
	GetPulse(ctx context.Context, caseID string) pulse.Lookup
}

// Session evaluates case updates one at a time and keeps the latest result.
type Session struct {
	source PulseSource
	opts   pulse.Options
	now    func() time.Time
	log    *logging.Logger

	// handling serializes HandleCaseUpdated.
	handling sync.Mutex

	mu    sync.RWMutex
	prefs Prefs
	view  *pulse.ViewModel

	busy atomic.Int32
}

// NewSession creates a session. opts.Now is ignored; each evaluation uses the
// current time.
func NewSession(source PulseSource, opts pulse.Options, log *logging.Logger) *Session {
	if log == nil {
		log = logging.Nop()
	}
	opts.Now = time.Time{}
	return &Session{
		source: source,
		opts:   opts,
		now:    time.Now,
		log:    log,
		prefs:  DefaultPrefs(),
	}
}

// HandleCaseUpdated re-evaluates the widget for a case event. A nil event or
// one without a case id hides the widget and returns nil.
func (s *Session) HandleCaseUpdated(ctx context.Context, ev *pulse.CaseEvent) *pulse.ViewModel {
	s.handling.Lock()
	defer s.handling.Unlock()

	if ev == nil || ev.ID == "" {
		s.setView(nil)
		return nil
	}

	summary := ev.Summary()
	lookup := s.source.GetPulse(ctx, summary.ID)
	if lookup.Status == pulse.LookupUnavailable {
		s.log.Warn("pulse unavailable, showing empty checklist", "case_id", summary.ID)
	}

	opts := s.opts
	opts.Now = s.now()
	vm := pulse.Evaluate(summary, lookup, opts)
	s.setView(&vm)
	return &vm
}

func (s *Session) setView(vm *pulse.ViewModel) {
	s.mu.Lock()
	s.view = vm
	s.mu.Unlock()
}

// View returns the current evaluation, or nil while hidden.
func (s *Session) View() *pulse.ViewModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Visible reports whether a case is shown.
func (s *Session) Visible() bool {
	return s.View() != nil
}

// Widget lays out the current view. ok is false while hidden.
func (s *Session) Widget() (Widget, bool) {
	s.mu.RLock()
	vm, prefs := s.view, s.prefs
	s.mu.RUnlock()
	if vm == nil {
		return Widget{}, false
	}
	return BuildWidget(vm, prefs, s.Busy()), true
}

// Prefs returns the display preferences.
func (s *Session) Prefs() Prefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetPosition moves the widget. Offsets are CSS pixel or percentage values.
func (s *Session) SetPosition(left, top string) error {
	if !ValidOffset(left) || !ValidOffset(top) {
		return errors.NewInvalidRequest("left and top must be pixel or percent offsets")
	}
	s.mu.Lock()
	s.prefs.Left, s.prefs.Top = left, top
	s.mu.Unlock()
	return nil
}

// ResetPosition restores the default position.
func (s *Session) ResetPosition() {
	s.mu.Lock()
	s.prefs.Left, s.prefs.Top = DefaultLeft, DefaultTop
	s.mu.Unlock()
}

// SetMode switches between full and compact display.
func (s *Session) SetMode(mode string) error {
	m, err := ParseMode(mode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs.Mode = m
	s.mu.Unlock()
	return nil
}

// Activity tracks in-flight guided engineering requests. It matches
// gateway.ActivityFunc.
func (s *Session) Activity(active bool) {
	if active {
		s.busy.Add(1)
		return
	}
	if s.busy.Add(-1) < 0 {
		s.busy.Store(0)
	}
}

// Busy reports whether any request is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load() > 0
}
