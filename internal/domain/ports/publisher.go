package ports

import "voicescribe/internal/domain"

// EventPublisher is the fan-out side of the broadcast hub as seen by the
// scheduler and tracker. Publish must never block the caller beyond a bounded
// enqueue.
type EventPublisher interface {
	Publish(event domain.ProgressEvent)
}
