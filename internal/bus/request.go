package bus

import (
	"context"
	"time"

	ottoerrors "otto/internal/errors"
	"otto/internal/id"
)

// RequestEnvelope carries a correlated request payload. Responders must echo
// the correlation id through Respond.
type RequestEnvelope struct {
	CorrelationID string
	Payload       any
}

// ResponseEnvelope carries a correlated response payload.
type ResponseEnvelope struct {
	CorrelationID string
	Payload       any
}

// responseType derives the response event type for a request type.
func responseType(eventType string) string {
	return eventType + ".response"
}

// Request implements request/response over pub/sub: it publishes a correlated
// request event of eventType and waits for exactly one matching response or a
// TimeoutError. Additional responses for the same correlation id are ignored.
func (b *Bus) Request(ctx context.Context, eventType string, payload any, timeout time.Duration) (any, error) {
	corrID := id.NewRequestID()
	replies := make(chan any, 1)

	subID := b.Subscribe(responseType(eventType), func(event Event) {
		env, ok := event.Payload.(ResponseEnvelope)
		if !ok || env.CorrelationID != corrID {
			return
		}
		select {
		case replies <- env.Payload:
		default:
		}
	})
	defer b.Unsubscribe(subID)

	b.Publish(Event{
		Type:    eventType,
		Payload: RequestEnvelope{CorrelationID: corrID, Payload: payload},
		Source:  "bus.request",
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &ottoerrors.TimeoutError{Operation: "request " + eventType, Timeout: timeout}
	}
}

// Respond publishes the response for a previously received request event.
// It is a no-op for events that do not carry a RequestEnvelope.
func (b *Bus) Respond(request Event, payload any, source string) {
	env, ok := request.Payload.(RequestEnvelope)
	if !ok {
		return
	}
	b.Publish(Event{
		Type:    responseType(request.Type),
		Payload: ResponseEnvelope{CorrelationID: env.CorrelationID, Payload: payload},
		Source:  source,
	})
}
