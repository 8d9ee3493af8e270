package collect

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EventType enumerates the pipeline lifecycle events, in emission order:
// started, one engine_done per engine, synthesizing (when attempted),
// complete.
type EventType string

const (
	EventStarted      EventType = "started"
	EventEngineDone   EventType = "engine_done"
	EventSynthesizing EventType = "synthesizing"
	EventComplete     EventType = "complete"
)

// Event is one progress notification. Fields are populated per type.
type Event struct {
	Type      EventType          `json:"type"`
	Time      time.Time          `json:"time"`
	Query     string             `json:"query,omitempty"`
	Engines   []string           `json:"engines,omitempty"`
	Engine    string             `json:"engine,omitempty"`
	Status    Status             `json:"status,omitempty"`
	CharCount int                `json:"char_count,omitempty"`
	Results   []ExtractionResult `json:"results,omitempty"`
}

// Sink receives progress events. Implementations deliver to different
// backends; a sink that errors or stalls must never be able to take the
// collection run down with it. The router guarantees that.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// sinkTimeout bounds one delivery attempt. Observers are fire-and-forget:
// the pipeline moves on whether or not anyone was listening.
const sinkTimeout = 2 * time.Second

// Router fans events out to all sinks, best effort: errors are logged,
// slow sinks are cut off at sinkTimeout, and nothing propagates back into
// the pipeline.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Publish delivers an event to every sink. It never returns an error.
func (r *Router) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.Send(ctx, ev); err != nil {
			r.logger.Warn("collect: event sink failed", "type", ev.Type, "error", err)
		}
		cancel()
	}
}

// Close closes all sinks.
func (r *Router) Close() {
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			r.logger.Warn("collect: sink close failed", "error", err)
		}
	}
}

// CallbackSink delivers events as in-process function calls, zero
// serialization. The nil function is allowed and drops everything.
type CallbackSink struct {
	Fn func(ctx context.Context, ev Event) error
}

func (c *CallbackSink) Send(ctx context.Context, ev Event) error {
	if c.Fn == nil {
		return nil
	}
	return c.Fn(ctx, ev)
}

func (c *CallbackSink) Close() error { return nil }

// StdoutSink writes events as JSON lines to an io.Writer (default
// os.Stdout).
type StdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdoutSink creates a StdoutSink. If w is nil, os.Stdout is used.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{enc: json.NewEncoder(w)}
}

func (s *StdoutSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

func (s *StdoutSink) Close() error { return nil }
