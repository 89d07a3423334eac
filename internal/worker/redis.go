package worker

import (
	"context"
	"encoding/json"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/redis"
)

const sessionEndChannel = "worker:session_end"

type sessionEndMessage struct {
	SessionID string `json:"session_id"`
}

// sessionBroker carries session-end notices between instances. A nil broker
// is valid and does nothing.
type sessionBroker struct {
	client *redis.Client

	mu     sync.Mutex
	pubsub *goredis.PubSub
}

func newSessionBroker(client *redis.Client) *sessionBroker {
	return &sessionBroker{client: client}
}

// startListener subscribes and calls handler for every message until ctx
// ends or the broker is closed.
func (b *sessionBroker) startListener(ctx context.Context, handler func(sessionEndMessage)) {
	if b == nil || handler == nil {
		return
	}
	raw := b.client.Raw()
	if raw == nil {
		return
	}
	pubsub := raw.Subscribe(ctx, sessionEndChannel)
	// wait for the subscription so publishes right after start are seen
	if _, err := pubsub.Receive(ctx); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("worker subscribe failed")
		_ = pubsub.Close()
		return
	}
	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			var end sessionEndMessage
			if err := json.Unmarshal([]byte(msg.Payload), &end); err != nil {
				log.FromCtx(ctx).Warn().Err(err).Msg("worker session end decode failed")
				continue
			}
			handler(end)
		}
	}()
}

func (b *sessionBroker) publishSessionEnd(ctx context.Context, sessionID string) {
	if b == nil {
		return
	}
	if err := b.client.Publish(ctx, sessionEndChannel, sessionEndMessage{SessionID: sessionID}); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("worker publish session end failed")
	}
}

func (b *sessionBroker) close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		_ = b.pubsub.Close()
		b.pubsub = nil
	}
}
