package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

const (
	// ProjectionChannel carries live projection events over Pub/Sub for
	// connected presentation-layer consumers.
	ProjectionChannel = "cm:projections"

	// projectionStream is the durable, capped replay log for consumers that
	// reconnect and need to catch up.
	projectionStream = "cm:projections:log"

	// streamMaxLen bounds the replay log via XADD MAXLEN ~.
	streamMaxLen int64 = 10000
)

// ProjectionBus implements domain.Projector using Redis Pub/Sub for live
// delivery and a capped stream for replay. Both writes are best effort: the
// engine treats projection loss as a display-freshness problem, never a
// settlement problem.
type ProjectionBus struct {
	rdb *redis.Client
}

// NewProjectionBus creates a ProjectionBus backed by the given Client.
func NewProjectionBus(c *Client) *ProjectionBus {
	return &ProjectionBus{rdb: c.Underlying()}
}

// Publish serializes the event and fans it out to the live channel and the
// replay stream.
func (pb *ProjectionBus) Publish(ctx context.Context, ev domain.ProjectionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal projection %s/%s: %w", ev.Kind, ev.MarketID, err)
	}

	pipe := pb.rdb.Pipeline()
	pipe.Publish(ctx, ProjectionChannel, payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: projectionStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish projection %s/%s: %w", ev.Kind, ev.MarketID, err)
	}
	return nil
}

// Subscribe returns a channel of raw projection payloads for the live
// Pub/Sub feed. The subscription closes with the context.
func (pb *ProjectionBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := pb.rdb.Subscribe(ctx, ProjectionChannel)

	// Confirm the subscription before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe projections: %w", err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.Projector = (*ProjectionBus)(nil)
