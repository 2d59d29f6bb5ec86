package mqtt

import "github.com/rs/zerolog"

// message is a serialized publish kept for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds publishes made while the broker is unreachable. When full the
// oldest entry is overwritten. The caller synchronizes.
type outbox[T any] struct {
	items   []T
	oldest  int
	n       int
	dropped int
	warned  bool
	log     zerolog.Logger
}

func newOutbox[T any](size int, log zerolog.Logger) *outbox[T] {
	return &outbox[T]{items: make([]T, max(size, 1)), log: log}
}

func (o *outbox[T]) add(v T) {
	size := len(o.items)
	if o.n < size {
		o.items[(o.oldest+o.n)%size] = v
		o.n++
		return
	}
	if !o.warned {
		o.log.Warn().Int("capacity", size).Msg("offline buffer full, dropping oldest")
		o.warned = true
	}
	o.items[o.oldest] = v
	o.oldest = (o.oldest + 1) % size
	o.dropped++
}

// take empties the outbox and returns its contents oldest first, with the
// number of entries lost to overflow since the previous take.
func (o *outbox[T]) take() ([]T, int) {
	dropped := o.dropped
	o.dropped = 0
	o.warned = false
	if o.n == 0 {
		return nil, dropped
	}
	out := make([]T, 0, o.n)
	for i := 0; i < o.n; i++ {
		out = append(out, o.items[(o.oldest+i)%len(o.items)])
	}
	var zero T
	for i := range o.items {
		o.items[i] = zero
	}
	o.oldest, o.n = 0, 0
	return out, dropped
}

func (o *outbox[T]) len() int {
	return o.n
}
