package pages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/energy-monitor/internal/touch"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func testConfig() Config {
	return Config{
		PageCount:       3,
		NextPageChannel: 0,
		SampleInterval:  1000 * time.Millisecond,
		RenderInterval:  200 * time.Millisecond,
	}
}

func testChannels() []touch.ChannelConfig {
	return []touch.ChannelConfig{
		{ID: 0, Threshold: touch.DefaultThreshold},
		{ID: 1, Threshold: touch.DefaultThreshold},
	}
}

func newTestScheduler() *Scheduler {
	return NewScheduler(testConfig(), testChannels(), at(0))
}

func TestSampleThenRenderScenario(t *testing.T) {
	s := newTestScheduler()

	a := s.Tick(at(50), true)
	assert.False(t, a.WantSample)
	assert.False(t, a.WantRender)

	a = s.Tick(at(1000), true)
	assert.True(t, a.WantSample)
	assert.False(t, a.WantRender)

	s.MarkTelemetryUpdated()
	a = s.Tick(at(1050), true)
	assert.False(t, a.WantSample)
	assert.True(t, a.WantRender)
	assert.False(t, a.FullRedraw)
	assert.False(t, s.State().Dirty)
	assert.Equal(t, at(1050), s.State().LastRenderAt)
}

func TestPageWrapsWithFullRedraw(t *testing.T) {
	s := newTestScheduler()
	s.OnButtonEvent(0)
	s.OnButtonEvent(0)
	require.Equal(t, 2, s.PageIndex())

	// Consume the pending redraw
	s.Tick(at(300), false)

	assert.True(t, s.OnButtonEvent(0))
	assert.Equal(t, 0, s.PageIndex())

	a := s.Tick(at(600), false)
	assert.True(t, a.WantRender)
	assert.True(t, a.FullRedraw)
	assert.Equal(t, 0, a.PageIndex)

	s.MarkTelemetryUpdated()
	a = s.Tick(at(900), false)
	assert.True(t, a.WantRender)
	assert.False(t, a.FullRedraw, "full redraw is consumed once")
}

func TestPageIndexAfterKPresses(t *testing.T) {
	for start := 0; start < 3; start++ {
		for k := 0; k < 10; k++ {
			s := newTestScheduler()
			for i := 0; i < start; i++ {
				s.OnButtonEvent(0)
			}
			for i := 0; i < k; i++ {
				s.OnButtonEvent(0)
			}
			assert.Equal(t, (start+k)%3, s.PageIndex(), "start=%d k=%d", start, k)
		}
	}
}

func TestUnboundChannelIsNoop(t *testing.T) {
	s := newTestScheduler()
	assert.False(t, s.OnButtonEvent(1))
	assert.False(t, s.OnButtonEvent(99))
	assert.Equal(t, 0, s.PageIndex())
	assert.False(t, s.State().Dirty)
	assert.Equal(t, 0, s.PageChanges())
}

func TestRenderDeferredNotLost(t *testing.T) {
	s := newTestScheduler()
	s.MarkTelemetryUpdated()
	require.True(t, s.Tick(at(200), true).WantRender)

	s.MarkTelemetryUpdated()
	for _, ms := range []int{250, 300, 399} {
		a := s.Tick(at(ms), true)
		assert.False(t, a.WantRender, "t=%d", ms)
		assert.True(t, s.State().Dirty, "t=%d", ms)
	}

	a := s.Tick(at(400), true)
	assert.True(t, a.WantRender)
	assert.False(t, s.State().Dirty)
}

func TestNoRenderWhenClean(t *testing.T) {
	s := newTestScheduler()
	for ms := 0; ms <= 5000; ms += 100 {
		assert.False(t, s.Tick(at(ms), false).WantRender)
	}
}

func TestSampleOncePerWindowWhileConnected(t *testing.T) {
	s := newTestScheduler()
	samples := 0
	for ms := 0; ms <= 5000; ms += 50 {
		if s.Tick(at(ms), true).WantSample {
			samples++
		}
	}
	assert.Equal(t, 5, samples)
}

func TestNoSampleWhileDisconnected(t *testing.T) {
	s := newTestScheduler()
	for ms := 0; ms <= 5000; ms += 50 {
		assert.False(t, s.Tick(at(ms), false).WantSample)
	}

	// Reconnecting samples straight away: the window has long passed.
	assert.True(t, s.Tick(at(5050), true).WantSample)
}

func TestSamplingIndependentOfDirty(t *testing.T) {
	s := newTestScheduler()
	s.MarkTelemetryUpdated()
	a := s.Tick(at(1000), true)
	assert.True(t, a.WantSample)
	assert.True(t, a.WantRender)
}

func TestConnectivityChangeForcesFullRedraw(t *testing.T) {
	s := newTestScheduler()
	s.MarkConnectivityChanged()

	st := s.State()
	assert.True(t, st.Dirty)
	assert.True(t, st.FullRedraw)

	a := s.Tick(at(200), false)
	assert.True(t, a.WantRender)
	assert.True(t, a.FullRedraw)
	assert.False(t, s.State().FullRedraw)
}

func TestFullRedrawNotReportedWithoutRender(t *testing.T) {
	s := newTestScheduler()
	s.MarkConnectivityChanged()
	a := s.Tick(at(100), false)
	assert.False(t, a.WantRender)
	assert.False(t, a.FullRedraw)
	assert.True(t, s.State().FullRedraw, "still pending")
}

func TestAlwaysFullRedrawPage(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysFullRedraw = []int{1}
	s := NewScheduler(cfg, testChannels(), at(0))

	s.OnButtonEvent(0)
	a := s.Tick(at(200), true)
	require.Equal(t, 1, a.PageIndex)
	assert.True(t, a.FullRedraw)

	s.MarkTelemetryUpdated()
	a = s.Tick(at(400), true)
	assert.True(t, a.WantRender)
	assert.True(t, a.FullRedraw, "chart page always clears")

	s.OnButtonEvent(0)
	s.Tick(at(600), true)
	s.MarkTelemetryUpdated()
	a = s.Tick(at(800), true)
	assert.Equal(t, 2, a.PageIndex)
	assert.False(t, a.FullRedraw)
}

func TestBackwardClockSkipsOneEvaluation(t *testing.T) {
	s := newTestScheduler()
	s.MarkTelemetryUpdated()
	a := s.Tick(at(1000), true)
	require.True(t, a.WantSample)
	require.True(t, a.WantRender)

	s.MarkTelemetryUpdated()
	a = s.Tick(at(400), true)
	assert.False(t, a.WantSample)
	assert.False(t, a.WantRender)
	assert.True(t, s.State().Dirty)

	// Gates re-anchor at the backward time and resume from there.
	a = s.Tick(at(600), true)
	assert.True(t, a.WantRender)
	a = s.Tick(at(1400), true)
	assert.True(t, a.WantSample)
}

func TestPollDrivesPages(t *testing.T) {
	s := newTestScheduler()
	press := []touch.Reading{{Channel: 0, Raw: 3}, {Channel: 1, Raw: 3}}
	release := []touch.Reading{{Channel: 0, Raw: 90}, {Channel: 1, Raw: 90}}

	assert.Empty(t, s.Poll(press, at(0)))
	events := s.Poll(press, at(50))
	require.Len(t, events, 2)
	assert.Equal(t, 1, s.PageIndex(), "only channel 0 is bound")

	s.Poll(press, at(100))
	s.Poll(press, at(150))
	assert.Equal(t, 1, s.PageIndex(), "holding does not repeat")

	s.Poll(release, at(200))
	s.Poll(press, at(250))
	s.Poll(press, at(300))
	assert.Equal(t, 2, s.PageIndex())
	assert.Equal(t, 2, s.PageChanges())
}

func TestZeroPageCountClamped(t *testing.T) {
	s := NewScheduler(Config{}, nil, at(0))
	assert.Equal(t, 1, s.PageCount())
	s.OnButtonEvent(0)
	assert.Equal(t, 0, s.PageIndex())
}
