package amqp

import (
	"context"

	"github.com/Ayushsunny/Budgease/internal/persistence"
)

// Bus exposes a Client as a persistence.ChangeBus.
type Bus struct {
	client *Client
}

var _ persistence.ChangeBus = (*Bus)(nil)

func NewBus(client *Client) *Bus {
	return &Bus{client: client}
}

func (b *Bus) Publish(ctx context.Context, ch persistence.Change) error {
	return b.client.PublishBudgetChanged(ctx, NewBudgetChangedMessage(ch.Identity, ch.Revision, ch.Origin))
}

func (b *Bus) Subscribe(ctx context.Context, identity string, fn func(persistence.Change)) (persistence.Unsubscribe, error) {
	stop, err := b.client.SubscribeBudgetChanges(ctx, identity, func(msg *BudgetChangedMessage) {
		fn(msg.Change())
	})
	if err != nil {
		return nil, err
	}
	return persistence.OnceUnsubscribe(stop), nil
}
