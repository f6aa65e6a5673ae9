// Package tracing records one span per helper execution. Spans are
// buffered and flushed in batches to an in-memory ring that backs the
// status endpoint, and optionally to an external OTLP backend.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	ringSize             = 200
)

// RunSpan is the record of one helper execution.
type RunSpan struct {
	ExecutionID string        `json:"executionId"`
	HelperID    string        `json:"helperId"`
	OwnerID     string        `json:"ownerId"`
	Status      string        `json:"status"`
	ErrorCause  string        `json:"errorCause,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}

// SpanExporter is implemented by backends that receive spans alongside the
// in-memory ring. Keeping this as an interface lets the OTel dependency
// live in a separate sub-package behind a build tag.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []RunSpan)
	Shutdown(ctx context.Context) error
}

// Collector buffers run spans and flushes them periodically. Emit is
// non-blocking; a full buffer drops the span rather than stall an
// executor task.
type Collector struct {
	spanCh chan RunSpan
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu   sync.Mutex
	ring []RunSpan

	exporter SpanExporter // nil = ring only
}

// NewCollector creates an idle collector; call Start to begin flushing.
func NewCollector() *Collector {
	return &Collector{
		spanCh: make(chan RunSpan, defaultBufferSize),
		stopCh: make(chan struct{}),
	}
}

// SetExporter attaches an external span exporter. Must be called before
// Start.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
}

// Stop drains remaining spans and shuts the exporter down.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("tracing: span exporter shutdown failed", "error", err)
		}
	}
}

// Emit enqueues one span. Non-blocking.
func (c *Collector) Emit(span RunSpan) {
	if span.StartedAt.IsZero() {
		span.StartedAt = time.Now().UTC()
	}
	select {
	case c.spanCh <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span",
			"execution", span.ExecutionID, "helper", span.HelperID)
	}
}

// Recent returns the most recent flushed spans, newest last.
func (c *Collector) Recent() []RunSpan {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RunSpan, len(c.ring))
	copy(out, c.ring)
	return out
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []RunSpan
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			goto done
		}
	}
done:
	if len(spans) == 0 {
		return
	}

	c.mu.Lock()
	c.ring = append(c.ring, spans...)
	if n := len(c.ring); n > ringSize {
		c.ring = append(c.ring[:0:0], c.ring[n-ringSize:]...)
	}
	c.mu.Unlock()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c.exporter.ExportSpans(ctx, spans)
		cancel()
	}
	slog.Debug("tracing: flushed spans", "count", len(spans))
}
