package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

// Publisher sends replies on the client's channel, pushes events onto the
// persistence list and publishes streams on their own channels.
type Publisher struct {
	client     Client
	eventQueue string
}

func NewPublisher(client Client, eventQueue string) *Publisher {
	return &Publisher{client: client, eventQueue: eventQueue}
}

func (p *Publisher) SendReply(ctx context.Context, clientID string, reply spot.Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	return p.client.Publish(ctx, clientID, data).Err()
}

func (p *Publisher) PushEvent(ctx context.Context, ev spot.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.LPush(ctx, p.eventQueue, data).Err()
}

func (p *Publisher) PublishStream(ctx context.Context, msg spot.StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal stream message: %w", err)
	}
	return p.client.Publish(ctx, msg.Stream, data).Err()
}

var _ spot.Publisher = (*Publisher)(nil)
