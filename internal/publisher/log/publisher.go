// Package log publishes notifications as structured log entries. It is the
// default sink for single-node deployments without a message broker.
package log

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Publisher writes every notification to a zap logger.
type Publisher struct {
	logger *zap.Logger
	count  atomic.Int64
}

// New builds a log publisher.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger.Named("notify")}
}

// Publish logs the payload and returns a random message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	id := uuid.NewString()
	p.count.Add(1)
	fields := []zap.Field{zap.String("topic", topic), zap.String("message_id", id)}
	if n, ok := payload.(watch.Notification); ok {
		fields = append(fields,
			zap.String("subject", n.Subject),
			zap.String("monitor_id", n.MonitorID),
			zap.String("url", n.URL),
			zap.Stringp("old_value", n.OldValue),
			zap.Stringp("new_value", n.NewValue),
			zap.Float64("confidence", n.Confidence),
			zap.String("body", n.Body),
		)
	} else {
		fields = append(fields, zap.Any("payload", payload))
	}
	p.logger.Info("notification", fields...)
	return id, nil
}

// Count returns how many messages were published.
func (p *Publisher) Count() int64 {
	return p.count.Load()
}
