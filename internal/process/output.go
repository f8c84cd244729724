package process

import "sync"

// outputHistory caps how many lines a buffer retains for late readers.
const outputHistory = 200

// OutputBuffer fans process output lines out to subscribers while
// keeping a bounded history for consumers that attach late.
type OutputBuffer struct {
	mu    sync.Mutex
	lines []string
	subs  map[chan string]struct{}
}

// NewOutputBuffer creates an empty buffer.
func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{subs: make(map[chan string]struct{})}
}

// Publish records a line and delivers it to all subscribers. Slow
// subscribers drop lines rather than block the producer.
func (b *OutputBuffer) Publish(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	if len(b.lines) > outputHistory {
		b.lines = b.lines[len(b.lines)-outputHistory:]
	}
	for ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe registers a new listener and returns its channel along with
// the buffered history. The cancel function must be called to release
// the subscription.
func (b *OutputBuffer) Subscribe() (<-chan string, []string, func()) {
	ch := make(chan string, 64)

	b.mu.Lock()
	history := make([]string, len(b.lines))
	copy(history, b.lines)
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
	return ch, history, cancel
}

// Lines returns a copy of the retained history.
func (b *OutputBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
