// Package trace implements the Trace Emitter (C8): a batched, ClickHouse-
// backed sink for canon.Span records. It follows the same background-flush
// shape as internal/observability's callbacks (see S3Callback's logQueue +
// flushLoop), generalized from "log entry" to "span" and from S3 PutObject
// batches to ClickHouse batch inserts.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/goccy/go-json"

	"github.com/opengw/llmgateway/internal/canon"
)

func marshalAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}", err
	}
	return string(b), nil
}

// Config configures the ClickHouse-backed Trace Emitter.
type Config struct {
	URL           string
	BatchSize     int
	FlushInterval time.Duration
}

const (
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
)

// Emitter batches canon.Span records in memory and flushes them to
// ClickHouse on a timer or once BatchSize is reached, whichever comes
// first. Emit never blocks the request path: a full queue drops the span
// and increments Dropped rather than applying backpressure.
type Emitter struct {
	conn driver.Conn

	mu        sync.Mutex
	buf       []canon.Span
	batchSize int

	flushInterval time.Duration
	logger        *slog.Logger

	dropped uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEmitter dials ClickHouse, creates the spans table if absent, and starts
// the background flush loop.
func NewEmitter(ctx context.Context, cfg Config, logger *slog.Logger) (*Emitter, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, createSpansTableDDL); err != nil {
		return nil, err
	}

	e := &Emitter{
		conn:          conn,
		buf:           make([]canon.Span, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}

	e.wg.Add(1)
	go e.flushLoop()

	return e, nil
}

const createSpansTableDDL = `
CREATE TABLE IF NOT EXISTS gateway_spans (
	trace_id     String,
	span_id      String,
	parent_id    String,
	name         String,
	start_time   DateTime64(3),
	end_time     DateTime64(3),
	attributes   String,
	error        String
) ENGINE = MergeTree()
ORDER BY (trace_id, start_time)
`

// Emit enqueues span for the next flush. It is safe for concurrent use and
// never blocks on network I/O.
func (e *Emitter) Emit(span canon.Span) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.buf) >= e.batchSize*4 {
		e.dropped++
		return
	}

	e.buf = append(e.buf, span)
	if len(e.buf) >= e.batchSize {
		go e.flush()
	}
}

// Dropped returns the number of spans dropped so far due to a saturated
// queue. The request path is never blocked to keep this number at zero.
func (e *Emitter) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *Emitter) flushLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.stopCh:
			e.flush()
			return
		}
	}
}

func (e *Emitter) flush() {
	e.mu.Lock()
	if len(e.buf) == 0 {
		e.mu.Unlock()
		return
	}
	batch := e.buf
	e.buf = make([]canon.Span, 0, e.batchSize)
	e.mu.Unlock()

	ctx := context.Background()
	chBatch, err := e.conn.PrepareBatch(ctx, "INSERT INTO gateway_spans")
	if err != nil {
		e.logger.Warn("trace emitter: failed to prepare batch", "error", err, "spans", len(batch))
		return
	}

	for _, span := range batch {
		attrs, _ := marshalAttributes(span.Attributes)
		errMsg := span.Attributes["error"]
		if appendErr := chBatch.Append(
			span.TraceID,
			span.SpanID,
			span.ParentID,
			span.OperationName,
			time.UnixMicro(span.StartTimeUs),
			time.UnixMicro(span.FinishTimeUs),
			attrs,
			errMsg,
		); appendErr != nil {
			e.logger.Warn("trace emitter: failed to append span", "error", appendErr)
		}
	}

	if sendErr := chBatch.Send(); sendErr != nil {
		e.logger.Warn("trace emitter: failed to send batch", "error", sendErr, "spans", len(batch))
	}
}

// Close flushes any buffered spans and closes the underlying connection.
func (e *Emitter) Close() error {
	close(e.stopCh)
	e.wg.Wait()
	return e.conn.Close()
}
