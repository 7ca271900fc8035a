// Package ingest buffers gateway messages between the Discord listener and the store.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/database"
	"github.com/edgard/summarybot/internal/metrics"
)

// shutdownFlushTimeout bounds the final write after the run context is cancelled.
const shutdownFlushTimeout = 10 * time.Second

// Writer persists message revisions.
type Writer interface {
	SaveMessages(ctx context.Context, messages []*database.Message) error
}

// Queue is a bounded buffer drained by a single writer goroutine.
// Enqueue never blocks: when the buffer is full the message is dropped.
type Queue struct {
	items         chan *database.Message
	writer        Writer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	dropped atomic.Int64
	written atomic.Int64
}

// NewQueue creates a queue sized from cfg that writes batches to writer.
func NewQueue(writer Writer, cfg config.IngestConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := max(cfg.QueueSize, 1)
	batch := max(cfg.BatchSize, 1)
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = config.DefaultIngestFlushInterval
	}

	return &Queue{
		items:         make(chan *database.Message, size),
		writer:        writer,
		batchSize:     batch,
		flushInterval: interval,
		logger:        logger.With("component", "ingest"),
	}
}

// Enqueue offers a message to the queue and reports whether it was accepted.
func (q *Queue) Enqueue(msg *database.Message) bool {
	if msg == nil {
		return false
	}
	select {
	case q.items <- msg:
		metrics.MessagesIngested.WithLabelValues("queued").Inc()
		metrics.IngestQueueDepth.Set(float64(len(q.items)))
		return true
	default:
		n := q.dropped.Add(1)
		metrics.MessagesIngested.WithLabelValues("dropped").Inc()
		// Log the first drop and every hundredth after it.
		if n == 1 || n%100 == 0 {
			q.logger.Warn("Ingestion queue full, dropping message",
				"message_id", msg.ID, "channel_id", msg.ChannelID, "dropped_total", n)
		}
		return false
	}
}

// Dropped returns the number of messages rejected because the queue was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Written returns the number of messages handed to the writer successfully.
func (q *Queue) Written() int64 {
	return q.written.Load()
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.items)
}

// Run drains the queue until ctx is cancelled, writing a batch whenever it is
// full or the flush interval elapses. Buffered messages are flushed before returning.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.InfoContext(ctx, "Ingestion writer started",
		"queue_size", cap(q.items), "batch_size", q.batchSize, "flush_interval", q.flushInterval)

	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	batch := make([]*database.Message, 0, q.batchSize)
	for {
		select {
		case msg := <-q.items:
			batch = append(batch, msg)
			if len(batch) >= q.batchSize {
				q.flush(ctx, batch)
				batch = make([]*database.Message, 0, q.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				q.flush(ctx, batch)
				batch = make([]*database.Message, 0, q.batchSize)
			}
		case <-ctx.Done():
			q.drain(batch)
			q.logger.Info("Ingestion writer stopped",
				"written", q.written.Load(), "dropped", q.dropped.Load())
			return nil
		}
	}
}

// drain writes whatever is still buffered using a fresh bounded context.
func (q *Queue) drain(batch []*database.Message) {
	for len(q.items) > 0 {
		batch = append(batch, <-q.items)
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	q.flush(ctx, batch)
}

func (q *Queue) flush(ctx context.Context, batch []*database.Message) {
	metrics.IngestQueueDepth.Set(float64(len(q.items)))
	if err := q.writer.SaveMessages(ctx, batch); err != nil {
		metrics.MessagesIngested.WithLabelValues("failed").Add(float64(len(batch)))
		q.logger.ErrorContext(ctx, "Failed to write message batch", "count", len(batch), "error", err)
		return
	}
	q.written.Add(int64(len(batch)))
	metrics.MessagesIngested.WithLabelValues("stored").Add(float64(len(batch)))
	q.logger.DebugContext(ctx, "Message batch written", "count", len(batch))
}
