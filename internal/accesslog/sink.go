// Package accesslog records the outcome of authorize and token requests.
// Sinks are fire-and-forget: they never block or fail the request.
package accesslog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome values besides OAuth2 error identifiers.
const (
	OutcomeSuccess       = "success"
	OutcomeCodeIssued    = "code_issued"
	OutcomeConsentShown  = "consent_shown"
	OutcomeLoginRequired = "login_required"
	OutcomeRateLimited   = "slow_down"
)

// Entry is one handled request.
type Entry struct {
	Endpoint   string
	Outcome    string
	Duration   time.Duration
	ClientID   string
	UserID     string
	RemoteAddr string
	Time       time.Time
}

// Sink receives access log entries.
type Sink interface {
	Record(entry Entry)
}

// MultiSink fans an entry out to several sinks.
type MultiSink []Sink

func (m MultiSink) Record(entry Entry) {
	for _, sink := range m {
		sink.Record(entry)
	}
}

// LogrusSink writes entries as structured log lines.
type LogrusSink struct {
	Logger logrus.FieldLogger
}

func (s LogrusSink) Record(entry Entry) {
	fields := logrus.Fields{
		"endpoint":    entry.Endpoint,
		"outcome":     entry.Outcome,
		"duration_ms": entry.Duration.Milliseconds(),
		"client_id":   entry.ClientID,
		"remote_addr": entry.RemoteAddr,
	}
	if entry.UserID != "" {
		fields["user_id"] = entry.UserID
	}
	logger := s.Logger.WithFields(fields)
	if entry.Outcome == OutcomeSuccess || entry.Outcome == OutcomeCodeIssued {
		logger.Info("OAuth2 request handled")
		return
	}
	logger.Warn("OAuth2 request rejected")
}

// AsyncSink hands entries to a background goroutine. When the buffer is
// full the entry is dropped and counted.
type AsyncSink struct {
	next    Sink
	entries chan Entry
	logger  logrus.FieldLogger

	dropped atomic.Int64
	done    chan struct{}
}

func NewAsyncSink(next Sink, buffer int, logger logrus.FieldLogger) *AsyncSink {
	if buffer <= 0 {
		buffer = 1024
	}
	return &AsyncSink{
		next:    next,
		entries: make(chan Entry, buffer),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run drains entries until ctx is cancelled, then flushes what is buffered.
func (s *AsyncSink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case entry := <-s.entries:
			s.next.Record(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.entries:
					s.next.Record(entry)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (s *AsyncSink) Wait() {
	<-s.done
}

func (s *AsyncSink) Record(entry Entry) {
	select {
	case s.entries <- entry:
	default:
		dropped := s.dropped.Add(1)
		s.logger.WithField("dropped_total", dropped).Warn("Access log buffer full, entry dropped")
	}
}

// Dropped returns how many entries were discarded.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}
