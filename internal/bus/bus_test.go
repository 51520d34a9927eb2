package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vega-swarm/vega/pkg/types"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := New()

	ch1, cancel1 := b.Subscribe("alerts")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("alerts")
	defer cancel2()
	other, cancelOther := b.Subscribe("other")
	defer cancelOther()

	delivered := b.Publish("alerts", types.BusMessage{Text: "hello"})
	assert.Equal(t, 2, delivered)

	for _, ch := range []<-chan types.BusMessage{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "alerts", msg.Topic)
			assert.Equal(t, "hello", msg.Text)
			assert.False(t, msg.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive message")
		}
	}

	select {
	case <-other:
		t.Fatal("message leaked to another topic")
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()

	ch, cancel := b.Subscribe("alerts")
	require.Equal(t, 1, b.Subscribers("alerts"))

	cancel()
	assert.Equal(t, 0, b.Subscribers("alerts"))

	_, open := <-ch
	assert.False(t, open)

	// Cancelling twice is harmless.
	cancel()

	assert.Equal(t, 0, b.Publish("alerts", types.BusMessage{Text: "nobody home"}))
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()

	_, cancel := b.Subscribe("busy")
	defer cancel()

	// Overflow the subscriber buffer; publishes must return regardless.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("busy", types.BusMessage{Text: "spam"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
