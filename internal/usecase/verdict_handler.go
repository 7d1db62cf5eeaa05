package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"TradeReview/internal/domain/models"
	"TradeReview/internal/services/engine"
	"TradeReview/pkg/logger"
)

// VerdictHandler consumes engine verdicts delivered over Kafka. It shares the idempotent
// completion path with the HTTP callback, so a verdict seen on both paths settles once.
type VerdictHandler struct {
	topic      string
	dispatcher *ReviewDispatcher
	log        *logger.Logger
}

func NewVerdictHandler(topic string, d *ReviewDispatcher, lgr *logger.Logger) *VerdictHandler {
	return &VerdictHandler{
		topic:      topic,
		dispatcher: d,
		log:        lgr.With(logger.String("component", "verdict_handler")),
	}
}

func (h *VerdictHandler) Topic() string { return h.topic }

type verdictMessage struct {
	TradeLogID string          `json:"trade_log_id"`
	AttemptID  string          `json:"attempt_id"`
	Verdict    json.RawMessage `json:"verdict"`
}

// Handle returns an error only for messages that should be retried or dead-lettered.
func (h *VerdictHandler) Handle(ctx context.Context, data []byte) error {
	var msg verdictMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode verdict message: %w", err)
	}
	if msg.TradeLogID == "" || msg.AttemptID == "" {
		return fmt.Errorf("verdict message without trade_log_id or attempt_id")
	}
	v, err := engine.DecodeVerdict(msg.Verdict)
	if err != nil {
		return fmt.Errorf("attempt %s: %w", msg.AttemptID, err)
	}
	res, err := h.dispatcher.Complete(ctx, models.Completion{
		TradeLogID: msg.TradeLogID,
		AttemptID:  msg.AttemptID,
		Verdict:    v,
	})
	if err != nil {
		return err
	}
	h.log.Debug("verdict consumed",
		logger.String("attempt_id", msg.AttemptID),
		logger.Bool("applied", res.Applied),
		logger.String("status", string(res.Status)))
	return nil
}
