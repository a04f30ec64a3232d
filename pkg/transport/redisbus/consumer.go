package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotmatch/pkg/app/spot"
)

// Handler executes one decoded envelope
type Handler interface {
	Process(ctx context.Context, env spot.Envelope)
}

// Consumer pops envelopes off the command list. The API side LPUSHes, so
// BRPOP yields commands in arrival order.
type Consumer struct {
	client  Client
	queue   string
	timeout time.Duration // BRPOP block time, bounds shutdown latency
	backoff time.Duration // wait after a connection error
	log     *zap.SugaredLogger
}

func NewConsumer(client Client, queue string, logger *zap.SugaredLogger) *Consumer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Consumer{
		client:  client,
		queue:   queue,
		timeout: time.Second,
		backoff: time.Second,
		log:     logger,
	}
}

// Run feeds envelopes to h one at a time until ctx is done
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	c.log.Infow("consumer_started", "queue", c.queue)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := c.client.BRPop(ctx, c.timeout, c.queue).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warnw("consumer_pop_failed", "queue", c.queue, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}
		// BRPOP replies with [key, value]
		if len(res) != 2 {
			c.log.Warnw("consumer_bad_reply", "reply", res)
			continue
		}

		var env spot.Envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			c.log.Warnw("consumer_bad_envelope", "err", err, "raw", res[1])
			continue
		}
		h.Process(ctx, env)
	}
}
