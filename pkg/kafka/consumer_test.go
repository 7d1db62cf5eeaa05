package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeReview/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int
	calls    int
	traces   []string
}

func (h *flakyHandler) Topic() string { return "review.verdicts" }

func (h *flakyHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	h.traces = append(h.traces, TraceIDFrom(ctx))
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, retryMax int) *Consumer {
	t.Helper()
	c, err := NewConsumer(logger.Nop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retryMax, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	c.WithConsumerHook(NewHookChain(TraceHook{}, LoggingHook{Log: logger.Nop()}))
	return c
}

func TestHandleWithRetryRecovers(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &flakyHandler{failures: 2}
	msg := &message{
		topic: h.Topic(),
		km:    kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}}},
	}

	attempts, err := c.handleWithRetry(h, msg)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"t-1", "t-1", "t-1"}, h.traces)
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	c := newTestConsumer(t, 1)
	h := &flakyHandler{failures: 10}

	attempts, err := c.handleWithRetry(h, &message{topic: h.Topic()})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestHookChainPanicBecomesError(t *testing.T) {
	var afterOrder []string
	chain := NewHookChain(
		HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { afterOrder = append(afterOrder, "first") }},
		HookFuncs{
			Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
				panic("boom")
			},
			After: func(context.Context, string, kafka.Message, []byte, error) { afterOrder = append(afterOrder, "second") },
		},
	)

	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var herr *HookError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "ERR_PANIC", herr.Code)

	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	assert.Equal(t, []string{"second", "first"}, afterOrder)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.LessOrEqual(t, d, 80*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}
