// Package events delivers committed engine events to the outside world.
package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, evt engine.Event) {
	s.log.Debug("event",
		zap.String("type", string(evt.Type)),
		zap.String("match_id", evt.MatchID),
		zap.Int64("version", evt.Version),
		zap.Int("round", evt.Round),
		zap.Int("turn", evt.Turn),
	)
}

// Multi fans one event out to several sinks in order.
type Multi []engine.EventSink

func (m Multi) Publish(ctx context.Context, evt engine.Event) {
	for _, s := range m {
		s.Publish(ctx, evt)
	}
}
