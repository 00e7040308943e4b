package events

import (
	"context"
	"fmt"

	"github.com/oksasatya/account-management/internal/domain/event"
)

// jsonPublisher is satisfied by *helpers.RabbitPublisher.
type jsonPublisher interface {
	PublishJSON(ctx context.Context, msgType, msgID string, body any) error
}

// Publisher sends account events to the message broker.
type Publisher struct {
	pub jsonPublisher
}

func NewPublisher(pub jsonPublisher) *Publisher {
	return &Publisher{pub: pub}
}

func (p *Publisher) Publish(ctx context.Context, e event.Account) error {
	if err := p.pub.PublishJSON(ctx, e.Type, e.ID, e); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}
