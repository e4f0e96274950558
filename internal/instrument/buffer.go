package instrument

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives flushed batches of events.
type Sink interface {
	Write(batch []Event)
}

// LogSink writes every event as one structured log entry.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Write(batch []Event) {
	for _, e := range batch {
		fields := []zap.Field{
			zap.String("trace_id", e.TraceID),
			zap.String("span_id", e.SpanID),
			zap.String("source", e.Source),
			zap.String("component", e.Component),
			zap.String("action", e.Action),
			zap.Float64("duration_ms", e.DurationMs),
			zap.String("status", e.Status),
		}
		if e.ParentSpanID != "" {
			fields = append(fields, zap.String("parent_span_id", e.ParentSpanID))
		}
		if e.DocType != "" {
			fields = append(fields, zap.String("doctype", e.DocType))
		}
		if e.DocName != "" {
			fields = append(fields, zap.String("docname", e.DocName))
		}
		if len(e.Metadata) > 0 {
			fields = append(fields, zap.Any("metadata", e.Metadata))
		}
		s.Logger.Info("span", fields...)
	}
}

// EventBuffer collects events in memory and periodically flushes them
// to the sink in a batch.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	sink    Sink
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(sink Sink, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{
		sink:    sink,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	eb.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Enqueue adds an event to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Flush hands all buffered events to the sink.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	eb.sink.Write(batch)
}

// Stop halts the background ticker and flushes remaining events.
func (eb *EventBuffer) Stop() {
	eb.stop.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
		eb.Flush()
	})
}
