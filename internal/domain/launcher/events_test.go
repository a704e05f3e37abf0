package launcher

import (
	"testing"
	"time"
)

func TestBrokerFanOut(t *testing.T) {
	b := newBroker()

	id1, ch1 := b.subscribe()
	_, ch2 := b.subscribe()

	b.publish(Event{Kind: EventStarted, AppID: "clock"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.AppID != "clock" || ev.Kind != EventStarted {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	b.unsubscribe(id1)
	if _, open := <-ch1; open {
		t.Error("unsubscribed channel should be closed")
	}

	// Events published after unsubscribing still reach the remaining
	// subscriber.
	b.publish(Event{Kind: EventTerminated, AppID: "clock"})
	select {
	case ev := <-ch2:
		if ev.Kind != EventTerminated {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber did not receive event")
	}
}

func TestBrokerDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := newBroker()
	_, ch := b.subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Publish well past the buffer without anyone reading.
		for i := 0; i < subscriberBuffer*4; i++ {
			b.publish(Event{Kind: EventStarted, AppID: "clock"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffered prefix is still delivered.
	for i := 0; i < subscriberBuffer; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, i)
		}
	}
}

func TestBrokerNoReplayForLateSubscribers(t *testing.T) {
	b := newBroker()

	b.publish(Event{Kind: EventStarted, AppID: "clock"})

	_, ch := b.subscribe()
	select {
	case ev := <-ch:
		t.Fatalf("late subscriber must not see past events, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
