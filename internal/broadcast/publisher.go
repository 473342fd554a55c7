package broadcast

import (
	"github.com/google/uuid"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

// Publisher adapts the hub to the domain.Publisher contract used by the
// live state machine and the response pipeline.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

func (p *Publisher) ToAudience(presentationID uuid.UUID, event domain.Event) {
	p.hub.Broadcast(AudienceGroup(presentationID), event)
}

func (p *Publisher) ToPresenter(presentationID uuid.UUID, event domain.Event) {
	p.hub.Broadcast(PresenterGroup(presentationID), event)
}
