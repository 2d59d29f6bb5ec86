package mqtt

import (
	"testing"

	"github.com/rs/zerolog"
)

func fill(o *outbox[int], from, to int) {
	for i := from; i < to; i++ {
		o.add(i)
	}
}

func TestOutboxTake(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		pushed      int
		wantFirst   int
		wantLen     int
		wantDropped int
	}{
		{"empty", 4, 0, 0, 0, 0},
		{"partial", 4, 3, 0, 3, 0},
		{"exactly full", 4, 4, 0, 4, 0},
		{"overflow keeps newest", 4, 7, 3, 4, 3},
		{"zero size holds one", 0, 2, 1, 1, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newOutbox[int](tc.size, zerolog.Nop())
			fill(o, 0, tc.pushed)

			got, dropped := o.take()
			if len(got) != tc.wantLen {
				t.Fatalf("len: got %d, want %d (%v)", len(got), tc.wantLen, got)
			}
			if dropped != tc.wantDropped {
				t.Errorf("dropped: got %d, want %d", dropped, tc.wantDropped)
			}
			for i, v := range got {
				if v != tc.wantFirst+i {
					t.Errorf("item %d: got %d, want %d", i, v, tc.wantFirst+i)
				}
			}
			if o.len() != 0 {
				t.Errorf("len after take: got %d", o.len())
			}
		})
	}
}

func TestOutboxReuseAfterTake(t *testing.T) {
	o := newOutbox[int](3, zerolog.Nop())
	fill(o, 0, 5)
	o.take()

	fill(o, 10, 12)
	got, dropped := o.take()
	if dropped != 0 {
		t.Errorf("dropped should reset between takes, got %d", dropped)
	}
	if len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Errorf("second cycle: got %v", got)
	}
}

func TestOutboxWrapsWithoutTake(t *testing.T) {
	o := newOutbox[int](3, zerolog.Nop())
	fill(o, 0, 2)
	if o.len() != 2 {
		t.Fatalf("len: got %d", o.len())
	}
	fill(o, 2, 9)
	got, dropped := o.take()
	if dropped != 6 {
		t.Errorf("dropped: got %d, want 6", dropped)
	}
	if len(got) != 3 || got[0] != 6 || got[2] != 8 {
		t.Errorf("got %v, want [6 7 8]", got)
	}
}

func TestOutboxKeepsMessageFields(t *testing.T) {
	o := newOutbox[message](2, zerolog.Nop())
	o.add(message{
		topic:    "/esp32/Electricity/house/system",
		payload:  []byte(`{"system":{"event":"STARTUP"}}`),
		qos:      1,
		retained: true,
	})

	got, _ := o.take()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	m := got[0]
	if m.topic != "/esp32/Electricity/house/system" || m.qos != 1 || !m.retained {
		t.Errorf("message: got %+v", m)
	}
	if string(m.payload) != `{"system":{"event":"STARTUP"}}` {
		t.Errorf("payload: got %s", m.payload)
	}
}
