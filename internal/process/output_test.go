package process

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputBufferPublishSubscribe(t *testing.T) {
	b := NewOutputBuffer()
	ch, history, cancel := b.Subscribe()
	defer cancel()
	assert.Empty(t, history)

	b.Publish("hello")

	select {
	case line := <-ch:
		assert.Equal(t, "hello", line)
	case <-time.After(time.Second):
		t.Fatal("no line delivered")
	}
}

func TestOutputBufferLateSubscriberGetsHistory(t *testing.T) {
	b := NewOutputBuffer()
	b.Publish("first")
	b.Publish("second")

	_, history, cancel := b.Subscribe()
	defer cancel()
	assert.Equal(t, []string{"first", "second"}, history)
}

func TestOutputBufferHistoryBounded(t *testing.T) {
	b := NewOutputBuffer()
	for i := 0; i < outputHistory+50; i++ {
		b.Publish(fmt.Sprintf("line %d", i))
	}

	lines := b.Lines()
	require.Len(t, lines, outputHistory)
	assert.Equal(t, fmt.Sprintf("line %d", 50), lines[0])
}

func TestOutputBufferCancelStopsDelivery(t *testing.T) {
	b := NewOutputBuffer()
	ch, _, cancel := b.Subscribe()
	cancel()

	b.Publish("after cancel")

	select {
	case line := <-ch:
		t.Fatalf("unexpected delivery: %q", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOutputBufferSlowSubscriberDropsLines(t *testing.T) {
	b := NewOutputBuffer()
	ch, _, cancel := b.Subscribe()
	defer cancel()

	// Overflow the subscriber channel; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish("x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	assert.NotEmpty(t, ch)
}
