package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/internal/metrics"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
)

// DefaultPublishTimeout bounds how long one sink may take for one receipt
const DefaultPublishTimeout = 5 * time.Second

// Sink receives envelopes of committed transactions
type Sink interface {
	Name() string
	Publish(ctx context.Context, envs []Envelope) error
	Close() error
}

// Fanout hands every committed receipt to each sink. A failing sink is logged
// and counted; it never affects the ledger or the other sinks.
type Fanout struct {
	mu      sync.RWMutex
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewFanout(logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		sinks:   sinks,
		logger:  logger,
		metrics: m,
		timeout: DefaultPublishTimeout,
	}
}

// Add registers another sink
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// HandleReceipt is a ledger.Subscriber
func (f *Fanout) HandleReceipt(r *ledger.Receipt) {
	envs, err := FromReceipt(r)
	if err != nil {
		f.logger.Error("build envelopes failed", "tx_hash", r.TxHash.Hex(), "error", err)
		return
	}
	if len(envs) == 0 {
		return
	}

	f.mu.RLock()
	sinks := append([]Sink(nil), f.sinks...)
	f.mu.RUnlock()

	for _, s := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := s.Publish(ctx, envs)
		cancel()
		f.metrics.ObservePublish(s.Name(), len(envs), err)
		if err != nil {
			f.logger.Warn("publish events failed",
				"sink", s.Name(),
				"tx_hash", r.TxHash.Hex(),
				"events", len(envs),
				"error", err,
			)
		}
	}
}

// Close closes every sink
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.sinks = nil
	return errors.Join(errs...)
}
