package touch

import "time"

// Debouncer tracks a fixed set of touch channels and reports press edges.
// A touch has to be seen on two consecutive polls before it counts, so a
// single noisy sample never produces a press.
type Debouncer struct {
	channels []Channel
	index    map[int]int
	presses  map[int]int
}

// NewDebouncer creates channels from cfg in the given order. Duplicate ids
// keep the first entry.
func NewDebouncer(cfg []ChannelConfig) *Debouncer {
	d := &Debouncer{
		index:   make(map[int]int, len(cfg)),
		presses: make(map[int]int, len(cfg)),
	}
	for _, c := range cfg {
		if _, dup := d.index[c.ID]; dup {
			continue
		}
		d.index[c.ID] = len(d.channels)
		d.channels = append(d.channels, Channel{
			ID:        c.ID,
			Threshold: c.Threshold,
			State:     StateIdle,
		})
	}
	return d
}

// Poll feeds one raw reading to a channel and reports whether this poll is
// the press edge. Unknown channel ids are ignored.
func (d *Debouncer) Poll(id, raw int) bool {
	i, ok := d.index[id]
	if !ok {
		return false
	}
	ch := &d.channels[i]

	if raw >= ch.Threshold {
		ch.State = StateIdle
		return false
	}

	switch ch.State {
	case StateFirstContact:
		ch.State = StateHeld
		d.presses[id]++
		return true
	case StateHeld:
		return false
	default:
		// Idle, Released or anything unexpected: arm the channel.
		ch.State = StateFirstContact
		return false
	}
}

// Process polls every reading and returns the press edges, in reading order.
func (d *Debouncer) Process(readings []Reading, now time.Time) []Event {
	var events []Event
	for _, r := range readings {
		if d.Poll(r.Channel, r.Raw) {
			events = append(events, Event{Channel: r.Channel, Timestamp: now})
		}
	}
	return events
}

// State returns the current state of a channel.
func (d *Debouncer) State(id int) (State, bool) {
	i, ok := d.index[id]
	if !ok {
		return "", false
	}
	return d.channels[i].State, true
}

// Channels returns a copy of all channel states in configuration order.
func (d *Debouncer) Channels() []Channel {
	out := make([]Channel, len(d.channels))
	copy(out, d.channels)
	return out
}

// PressCount returns the number of press edges seen on a channel since startup.
func (d *Debouncer) PressCount(id int) int {
	return d.presses[id]
}
