// Package kafkabus mirrors engine events onto a Kafka topic.
package kafkabus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes ORDER_UPDATE and TRADE_ADDED events keyed by market, so
// a market's events stay ordered within one partition.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Publisher) PushEvent(ctx context.Context, ev spot.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(eventKey(ev)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// eventKey picks the partition key. Maker order updates carry no market and
// fall back to the order id.
func eventKey(ev spot.Event) string {
	switch d := ev.Data.(type) {
	case spot.TradeAddedData:
		return d.Market
	case spot.OrderUpdateData:
		if d.Market != "" {
			return d.Market
		}
		return d.OrderID
	}
	return ev.Type
}
