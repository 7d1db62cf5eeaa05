package repository

import (
	"context"

	"TradeReview/internal/domain/models"
	domrepo "TradeReview/internal/domain/repository"
	pkgkafka "TradeReview/pkg/kafka"
	"TradeReview/pkg/logger"
)

// KafkaReviewEvents publishes review lifecycle events keyed by trade log id,
// so the events of one entry stay ordered within a partition.
type KafkaReviewEvents struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaReviewEvents(producer *pkgkafka.Producer, topic string) *KafkaReviewEvents {
	return &KafkaReviewEvents{producer: producer, topic: topic}
}

func (p *KafkaReviewEvents) Publish(ctx context.Context, ev *models.ReviewEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.TradeLogID), ev,
		pkgkafka.Header{Key: "event_type", Value: string(ev.Type)},
		pkgkafka.Header{Key: "event_id", Value: ev.ID},
	)
}

func (p *KafkaReviewEvents) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogReviewEvents writes events to the log when no broker is configured.
type LogReviewEvents struct {
	l *logger.Logger
}

func NewLogReviewEvents(l *logger.Logger) *LogReviewEvents {
	return &LogReviewEvents{l: l.With(logger.String("component", "review_events"))}
}

func (p *LogReviewEvents) Publish(_ context.Context, ev *models.ReviewEvent) error {
	p.l.Info("review event",
		logger.String("event_id", ev.ID),
		logger.String("type", string(ev.Type)),
		logger.String("trade_log_id", ev.TradeLogID),
		logger.String("attempt_id", ev.AttemptID),
		logger.String("status", string(ev.Status)))
	return nil
}

func (p *LogReviewEvents) Close() error { return nil }

var (
	_ domrepo.ReviewEventPublisher = (*KafkaReviewEvents)(nil)
	_ domrepo.ReviewEventPublisher = (*LogReviewEvents)(nil)
)
