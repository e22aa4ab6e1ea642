// Package events streams call-log entries to NATS so that other services can
// follow provider health without reading the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bellvik/transport-planner/internal/routing"
)

// PublisherMetrics receives publish outcomes. *metrics.Collector implements it.
type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
}

// CallEvent is the JSON payload published for every call-log entry.
type CallEvent struct {
	RequestID string    `json:"requestId,omitempty"`
	Provider  string    `json:"provider"`
	Params    string    `json:"params"`
	Status    int       `json:"status"`
	LatencyMs float64   `json:"latencyMs"`
	CacheHit  bool      `json:"cacheHit"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is a routing.CallLog sink that publishes each entry on
// "<prefix>.<provider>". Publish failures are counted and logged, never
// returned.
type Publisher struct {
	nc      conn
	closer  func()
	prefix  string
	metrics PublisherMetrics
	logger  routing.Logger
}

// Connect dials url and returns a Publisher on it.
func Connect(url, prefix string, m PublisherMetrics) (*Publisher, error) {
	setConnected := func(v bool) {
		if m != nil {
			m.NATSSetConnected(v)
		}
	}
	nc, err := nats.Connect(url,
		nats.Name("transport-planner"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			log.Printf("events: nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			setConnected(true)
			log.Printf("events: nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			log.Printf("events: nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", url, err)
	}
	setConnected(true)

	p := newPublisher(nc, prefix, m, log.Printf)
	p.closer = func() {
		_ = nc.Drain()
		nc.Close()
	}
	return p, nil
}

func newPublisher(nc conn, prefix string, m PublisherMetrics, logger routing.Logger) *Publisher {
	if logger == nil {
		logger = log.Printf
	}
	return &Publisher{nc: nc, prefix: strings.TrimSuffix(prefix, "."), metrics: m, logger: logger}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// Subject returns the subject entries of provider are published on.
func (p *Publisher) Subject(provider string) string {
	return p.prefix + "." + subjectToken(provider)
}

// Record implements routing.CallLog.
func (p *Publisher) Record(_ context.Context, e routing.CallLogEntry) {
	b, err := json.Marshal(CallEvent{
		RequestID: e.RequestID,
		Provider:  e.Provider,
		Params:    e.Params,
		Status:    e.Status,
		LatencyMs: e.LatencyMs,
		CacheHit:  e.CacheHit,
		Error:     e.Error,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		p.logger("events: marshal %s entry: %v", e.Provider, err)
		return
	}

	subject := p.Subject(e.Provider)
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		p.logger("events: publish %s: %v", subject, err)
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
