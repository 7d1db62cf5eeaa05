package repository

import (
	"context"
	"sync"
	"time"

	"TradeReview/internal/domain/models"
	domrepo "TradeReview/internal/domain/repository"
	pkgch "TradeReview/pkg/clickhouse"
	applogger "TradeReview/pkg/logger"
)

// AttemptSchema creates the audit table of settled attempts.
var AttemptSchema = []string{
	`CREATE TABLE IF NOT EXISTS review_attempts (
        attempt_id    String,
        trade_log_id  String,
        account_id    String,
        instrument    LowCardinality(String),
        status        LowCardinality(String),
        credit_type   LowCardinality(String),
        charged       UInt8,
        error_code    LowCardinality(String),
        model         LowCardinality(String),
        input_tokens  Int64,
        output_tokens Int64,
        cost_usd      Float64,
        requested_at  DateTime64(3, 'UTC'),
        settled_at    DateTime64(3, 'UTC')
    ) ENGINE = ReplacingMergeTree(settled_at)
    PARTITION BY toYYYYMM(settled_at)
    ORDER BY (account_id, attempt_id)`,
}

const insertAttempt = `INSERT INTO review_attempts (attempt_id, trade_log_id, account_id, instrument, status, credit_type,
    charged, error_code, model, input_tokens, output_tokens, cost_usd, requested_at, settled_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CHAttemptSink buffers attempt rows and writes them to ClickHouse in batches,
// on size or on the flush interval, whichever comes first.
type CHAttemptSink struct {
	ch       *pkgch.Client
	l        *applogger.Logger
	batch    int
	interval time.Duration

	mu   sync.Mutex
	buf  [][]any
	stop chan struct{}
	done chan struct{}
}

func NewCHAttemptSink(ch *pkgch.Client, l *applogger.Logger, batch int, interval time.Duration) *CHAttemptSink {
	if batch <= 0 {
		batch = 500
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &CHAttemptSink{
		ch:       ch,
		l:        l.With(applogger.String("component", "attempt_sink")),
		batch:    batch,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *CHAttemptSink) Record(ctx context.Context, rec *models.AttemptRecord) error {
	row := []any{
		rec.AttemptID, rec.TradeLogID, rec.AccountID, rec.Instrument,
		string(rec.Status), string(rec.CreditType), boolToUInt8(rec.Charged), rec.ErrorCode,
		rec.Model, rec.InputTokens, rec.OutputTokens, rec.CostUSD,
		rec.RequestedAt.UTC(), rec.SettledAt.UTC(),
	}
	s.mu.Lock()
	s.buf = append(s.buf, row)
	full := len(s.buf) >= s.batch
	s.mu.Unlock()
	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes buffered rows. Failed rows are dropped after logging; the table is an audit copy.
func (s *CHAttemptSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	rows := s.buf
	s.buf = nil
	s.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}
	if err := s.ch.InsertBatch(ctx, insertAttempt, rows); err != nil {
		s.l.Error("clickhouse attempt batch failed", applogger.Int("rows", len(rows)), applogger.Error(err))
		return err
	}
	return nil
}

func (s *CHAttemptSink) loop() {
	defer close(s.done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			_ = s.Flush(ctx)
			cancel()
		}
	}
}

// Close stops the flush loop and writes what is left.
func (s *CHAttemptSink) Close() error {
	close(s.stop)
	<-s.done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Flush(ctx)
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// LogAttemptSink logs attempt rows when ClickHouse is disabled.
type LogAttemptSink struct {
	l *applogger.Logger
}

func NewLogAttemptSink(l *applogger.Logger) *LogAttemptSink {
	return &LogAttemptSink{l: l.With(applogger.String("component", "attempt_sink"))}
}

func (s *LogAttemptSink) Record(_ context.Context, rec *models.AttemptRecord) error {
	s.l.Debug("attempt settled",
		applogger.String("attempt_id", rec.AttemptID),
		applogger.String("status", string(rec.Status)),
		applogger.Bool("charged", rec.Charged),
		applogger.Int64("input_tokens", rec.InputTokens),
		applogger.Int64("output_tokens", rec.OutputTokens))
	return nil
}

func (s *LogAttemptSink) Close() error { return nil }

var (
	_ domrepo.AttemptSink = (*CHAttemptSink)(nil)
	_ domrepo.AttemptSink = (*LogAttemptSink)(nil)
)
