// Package pages decides when to sample telemetry and when to repaint the
// display. It performs no I/O: the caller executes the returned Action.
package pages

import (
	"time"

	"github.com/sweeney/energy-monitor/internal/touch"
)

// Defaults taken from the ESP32 firmware loop: sample the meter at most
// once a second, repaint at most every 200ms.
const (
	DefaultSampleInterval = time.Second
	DefaultRenderInterval = 200 * time.Millisecond
	DefaultPageCount      = 3
)

// Config controls page navigation and the two interval gates.
type Config struct {
	PageCount       int
	NextPageChannel int
	SampleInterval  time.Duration
	RenderInterval  time.Duration
	// AlwaysFullRedraw lists pages that clear the whole screen on every
	// repaint (the power chart redraws every line).
	AlwaysFullRedraw []int
}

// PageState is a point-in-time copy of the scheduler state.
type PageState struct {
	PageIndex    int
	Dirty        bool
	FullRedraw   bool
	LastSampleAt time.Time
	LastRenderAt time.Time
}

// Action tells the caller what to do this tick.
type Action struct {
	WantSample bool
	WantRender bool
	PageIndex  int
	FullRedraw bool
}

// Scheduler owns the current page, the dirty flag and the touch channels
// that drive navigation.
type Scheduler struct {
	cfg        Config
	alwaysFull map[int]bool
	debouncer  *touch.Debouncer

	state       PageState
	pageChanges int
}

// NewScheduler creates a scheduler on page 0. Both gates start counting at
// start, so the first sample is due one SampleInterval later.
func NewScheduler(cfg Config, channels []touch.ChannelConfig, start time.Time) *Scheduler {
	if cfg.PageCount <= 0 {
		cfg.PageCount = 1
	}
	s := &Scheduler{
		cfg:        cfg,
		alwaysFull: make(map[int]bool, len(cfg.AlwaysFullRedraw)),
		debouncer:  touch.NewDebouncer(channels),
		state: PageState{
			LastSampleAt: start,
			LastRenderAt: start,
		},
	}
	for _, p := range cfg.AlwaysFullRedraw {
		s.alwaysFull[p] = true
	}
	return s
}

// Poll runs the touch readings through the debouncer and applies every
// press edge. It returns the edges for logging.
func (s *Scheduler) Poll(readings []touch.Reading, now time.Time) []touch.Event {
	events := s.debouncer.Process(readings, now)
	for _, e := range events {
		s.OnButtonEvent(e.Channel)
	}
	return events
}

// OnButtonEvent handles a press edge on channel. Only the next-page channel
// is bound; anything else is a no-op. Reports whether the page changed.
func (s *Scheduler) OnButtonEvent(channel int) bool {
	if channel != s.cfg.NextPageChannel {
		return false
	}
	s.state.PageIndex = (s.state.PageIndex + 1) % s.cfg.PageCount
	s.state.Dirty = true
	s.state.FullRedraw = true
	s.pageChanges++
	return true
}

// MarkTelemetryUpdated records that a new sample is available to display.
func (s *Scheduler) MarkTelemetryUpdated() {
	s.state.Dirty = true
}

// MarkConnectivityChanged records a link state change. Status glyphs are
// repainted on a clean background.
func (s *Scheduler) MarkConnectivityChanged() {
	s.state.Dirty = true
	s.state.FullRedraw = true
}

// Tick evaluates both gates at now. A clock that goes backwards simply
// reads as "interval not elapsed".
func (s *Scheduler) Tick(now time.Time, sensorConnected bool) Action {
	a := Action{PageIndex: s.state.PageIndex}

	if sensorConnected && gate(&s.state.LastSampleAt, now, s.cfg.SampleInterval) {
		a.WantSample = true
	}

	if s.state.Dirty && gate(&s.state.LastRenderAt, now, s.cfg.RenderInterval) {
		a.WantRender = true
		a.FullRedraw = s.state.FullRedraw || s.alwaysFull[s.state.PageIndex]
		s.state.Dirty = false
		s.state.FullRedraw = false
	}

	return a
}

// gate reports whether interval has passed since *last and, if so, moves
// *last to now. A backward step re-anchors *last at now and skips this
// evaluation only.
func gate(last *time.Time, now time.Time, interval time.Duration) bool {
	d := now.Sub(*last)
	if d < 0 {
		*last = now
		return false
	}
	if d < interval {
		return false
	}
	*last = now
	return true
}

// State returns a copy of the current page state.
func (s *Scheduler) State() PageState {
	return s.state
}

// PageIndex returns the current page.
func (s *Scheduler) PageIndex() int {
	return s.state.PageIndex
}

// PageCount returns the number of pages.
func (s *Scheduler) PageCount() int {
	return s.cfg.PageCount
}

// PageChanges returns the number of page changes since startup.
func (s *Scheduler) PageChanges() int {
	return s.pageChanges
}

// Channels returns the touch channel states.
func (s *Scheduler) Channels() []touch.Channel {
	return s.debouncer.Channels()
}
