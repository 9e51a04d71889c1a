// Package notify carries the notification events produced by team and offer
// transitions to the configured delivery sinks.
package notify

import "context"

// Kind names a notification trigger point.
type Kind string

const (
	KindOfferReceived     Kind = "OFFER_RECEIVED"
	KindOfferAccepted     Kind = "OFFER_ACCEPTED"
	KindOfferDeclined     Kind = "OFFER_DECLINED"
	KindMemberJoined      Kind = "MEMBER_JOINED"
	KindMemberFired       Kind = "MEMBER_FIRED"
	KindMemberQuit        Kind = "MEMBER_QUIT"
	KindProjectCompleted  Kind = "PROJECT_COMPLETED"
	KindProjectIncomplete Kind = "PROJECT_INCOMPLETE"
)

// Event is a notification that must reach every recipient.
type Event struct {
	Kind       Kind
	Recipients []string
	Payload    map[string]any
}

// Emitter delivers a single event. Implementations own formatting and transport.
type Emitter interface {
	Emit(ctx context.Context, kind Kind, recipients []string, payload map[string]any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, kind Kind, recipients []string, payload map[string]any) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, kind Kind, recipients []string, payload map[string]any) error {
	return f(ctx, kind, recipients, payload)
}

// Except returns ids without the excluded ones, preserving order.
func Except(ids []string, excluded ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		skip := false
		for _, ex := range excluded {
			if id == ex {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, id)
		}
	}
	return out
}
