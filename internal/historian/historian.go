// internal/historian/historian.go

// Package historian drains game action records from the Redis queue and persists
// them to Postgres in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/blindtest/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultPopTimeout    = 3 * time.Second
)

// Queue is the part of *redis.Client the historian reads from.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists one batch atomically.
type Sink interface {
	InsertActions(ctx context.Context, batch []cache.ActionRecord) error
}

type Options struct {
	QueueName     string
	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration
}

// Service accumulates popped records and flushes them when the batch is full or
// the flush interval elapses, whichever comes first.
type Service struct {
	queue  Queue
	sink   Sink
	logger *logrus.Logger
	opts   Options

	batchMu sync.Mutex
	batch   []cache.ActionRecord
}

func NewService(queue Queue, sink Sink, logger *logrus.Logger, opts Options) *Service {
	if opts.QueueName == "" {
		opts.QueueName = cache.DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = DefaultPopTimeout
	}
	return &Service{
		queue:  queue,
		sink:   sink,
		logger: logger,
		opts:   opts,
		batch:  make([]cache.ActionRecord, 0, opts.BatchSize),
	}
}

// Run blocks until ctx is cancelled. Whatever is still batched is flushed before
// it returns.
func (s *Service) Run(ctx context.Context) {
	s.logger.WithField("queue", s.opts.QueueName).Info("historian started")
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.Flush(flushCtx)
			cancel()
			s.logger.Info("historian stopped")
			return

		case <-ticker.C:
			s.Flush(ctx)

		default:
			s.popOne(ctx)
		}
	}
}

// popOne waits up to PopTimeout for a record and batches it.
func (s *Service) popOne(ctx context.Context) {
	res, err := s.queue.BLPop(ctx, s.opts.PopTimeout, s.opts.QueueName).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.logger.WithError(err).Error("BLPop failed")
			// back off so a dead Redis does not spin the loop
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		return
	}
	// res[0] is the queue name, res[1] the payload
	if len(res) < 2 {
		return
	}
	var rec cache.ActionRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		s.logger.WithError(err).Warn("invalid action record")
		return
	}
	s.append(ctx, rec)
}

func (s *Service) append(ctx context.Context, rec cache.ActionRecord) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.opts.BatchSize {
		s.flushLocked(ctx)
	}
}

// Flush writes the pending batch in one transaction. A failed batch is logged
// and dropped.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushLocked(ctx)
}

func (s *Service) flushLocked(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	batch := make([]cache.ActionRecord, len(s.batch))
	copy(batch, s.batch)
	s.batch = s.batch[:0]

	if err := s.sink.InsertActions(ctx, batch); err != nil {
		s.logger.WithError(err).WithField("count", len(batch)).Error("failed to flush actions")
		return
	}
	s.logger.WithField("count", len(batch)).Debug("flushed actions")
}
