package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ottoerrors "otto/internal/errors"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	b.Subscribe("math.square", func(event Event) {
		env := event.Payload.(RequestEnvelope)
		n := env.Payload.(int)
		b.Respond(event, n*n, "calculator")
	})

	reply, err := b.Request(context.Background(), "math.square", 7, time.Second)
	require.NoError(t, err)
	require.Equal(t, 49, reply)
}

func TestRequestTimesOutWithoutResponder(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	start := time.Now()
	_, err := b.Request(context.Background(), "void", nil, 30*time.Millisecond)
	require.True(t, ottoerrors.IsTimeout(err))
	require.Less(t, time.Since(start), time.Second)
}

func TestRequestHonorsContextCancel(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := b.Request(ctx, "void", nil, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentRequestsCorrelateIndependently(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	b.Subscribe("echo", func(event Event) {
		env := event.Payload.(RequestEnvelope)
		b.Respond(event, env.Payload, "echoer")
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			want := fmt.Sprintf("msg-%d", n)
			reply, err := b.Request(context.Background(), "echo", want, time.Second)
			if err != nil {
				t.Errorf("request %d failed: %v", n, err)
				return
			}
			if reply != want {
				t.Errorf("request %d got %v, want %v", n, reply, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestRespondIgnoresNonRequestEvents(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	// Must not panic or publish anything.
	b.Respond(Event{Type: "plain", Payload: "not an envelope"}, "reply", "src")
	require.Equal(t, 0, b.HistoryLen())
}
