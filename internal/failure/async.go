package failure

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/example/multichannel/internal/messaging"
)

var recordCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "messaging_failure_records_total",
	Help: "Permanent-failure records by channel and fan-out status",
}, []string{"channel", "status"})

// Async fans records out to several sinks from a background goroutine.
// RecordFailure never blocks: when the buffer is full the record is dropped
// and counted.
type Async struct {
	sinks  []messaging.FailureSink
	logger zerolog.Logger
	queue  chan messaging.FailureRecord

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(buffer int, logger zerolog.Logger, sinks ...messaging.FailureSink) *Async {
	a := &Async{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan messaging.FailureRecord, max(buffer, 1)),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) RecordFailure(_ context.Context, rec messaging.FailureRecord) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		recordCounter.WithLabelValues(string(rec.Variant), "dropped").Inc()
		return
	}
	select {
	case a.queue <- rec:
		recordCounter.WithLabelValues(string(rec.Variant), "queued").Inc()
	default:
		recordCounter.WithLabelValues(string(rec.Variant), "dropped").Inc()
		a.logger.Warn().Str("message_id", rec.MessageID).Msg("failure sink buffer full, record dropped")
	}
}

func (a *Async) run() {
	defer close(a.done)
	for rec := range a.queue {
		for _, s := range a.sinks {
			s.RecordFailure(context.Background(), rec)
		}
	}
}

// Close stops accepting records and waits until queued ones are delivered
// or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
