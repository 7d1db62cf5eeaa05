package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"TradeReview/pkg/logger"
)

// MemoryQueue is an in-process bounded queue backed by a buffered channel.
type MemoryQueue struct {
	logger *logger.Logger
	config *QueueConfig
	ch     chan Message
	jobs   map[string]Job
	mu     sync.RWMutex
	wg     sync.WaitGroup
	seq    atomic.Int64

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewMemoryQueue(lgr *logger.Logger, config *QueueConfig) *MemoryQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	config.normalize()
	if lgr == nil {
		lgr = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		logger: lgr,
		config: config,
		ch:     make(chan Message, config.MaxDepth),
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (q *MemoryQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}
	q.running = true
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("memory queue started",
		logger.Int("workers", q.config.Workers),
		logger.Int("max_depth", q.config.MaxDepth))
	return nil
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("memory queue stopped", logger.Int("dropped", len(q.ch)))
		return nil
	}
}

// Enqueue never blocks: a full buffer is reported as ErrQueueFull.
func (q *MemoryQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrNotRunning
	}
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	return q.offer(Message{
		ID:        strconv.FormatInt(q.seq.Add(1), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (q *MemoryQueue) offer(msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Depth(context.Context) (int, error) {
	return len(q.ch), nil
}

func (q *MemoryQueue) Saturated(context.Context) bool {
	return len(q.ch) >= q.config.MaxDepth
}

func (q *MemoryQueue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ch:
			q.process(msg)
		}
	}
}

func (q *MemoryQueue) process(msg Message) {
	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		q.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	err := runJob(q.ctx, job, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	q.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= q.config.RetryLimit {
		return
	}
	msg.Attempts++
	time.AfterFunc(q.config.RetryDelay, func() {
		if q.ctx.Err() != nil {
			return
		}
		if err := q.offer(msg); err != nil {
			q.logger.Warn("retry dropped", logger.String("id", msg.ID), logger.Error(err))
		}
	})
}

// runJob shields workers from panicking handlers.
func runJob(ctx context.Context, job Job, payload interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panic: %v", job.Name(), r)
		}
	}()
	return job.Handle(ctx, payload)
}
