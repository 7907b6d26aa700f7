package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Subscribe streams raw envelopes published on the given subscriber keys
// until ctx is cancelled. The returned channel is closed afterwards.
func Subscribe(ctx context.Context, client *redis.Client, keys ...string) (<-chan []byte, error) {
	pubsub := client.Subscribe(ctx, keys...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan []byte)
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
