package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

const publishTimeout = 2 * time.Second

// RedisSink publishes events as JSON on a per-match channel so other
// processes (and their websocket clients) see them. Delivery is best effort:
// failures are logged and never retried.
type RedisSink struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

func NewRedisSink(rdb redis.UniversalClient, log *zap.Logger) *RedisSink {
	return &RedisSink{rdb: rdb, log: log}
}

func Channel(matchID string) string {
	return "match:" + matchID + ":events"
}

func (s *RedisSink) Publish(ctx context.Context, evt engine.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.log.Error("encode event", zap.String("match_id", evt.MatchID), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.rdb.Publish(ctx, Channel(evt.MatchID), data).Err(); err != nil {
			s.log.Warn("publish event",
				zap.String("match_id", evt.MatchID),
				zap.String("type", string(evt.Type)),
				zap.Error(err),
			)
		}
	}()
}

// Subscribe relays events published by any process for matchID until ctx
// ends. Payloads arrive as generic JSON.
func Subscribe(ctx context.Context, rdb redis.UniversalClient, matchID string) (<-chan engine.Event, error) {
	sub := rdb.Subscribe(ctx, Channel(matchID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan engine.Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt engine.Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
