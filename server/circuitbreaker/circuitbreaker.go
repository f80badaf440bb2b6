// Package circuitbreaker guards calls to the completion service with a
// gobreaker circuit and exports its state as Prometheus metrics.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds configuration for the circuit breaker
type Config struct {
	Name             string        // Label used in logs and metrics
	MaxRequests      uint32        // Requests allowed through while half-open
	Interval         time.Duration // Cyclic period of the closed state for clearing counts
	Timeout          time.Duration // Period of the open state before going half-open
	FailureThreshold uint32        // Consecutive failures before opening the circuit
	TestMode         bool          // Skip metric registration in test mode
}

// CircuitBreaker wraps gobreaker with logging and metrics.
type CircuitBreaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger

	stateGauge    prometheus.Gauge
	failuresCount prometheus.Counter
	tripsTotal    prometheus.Counter
}

// NewCircuitBreaker creates a circuit breaker and registers its metrics with
// registry unless config.TestMode is set or registry is nil.
func NewCircuitBreaker(config Config, logger *zap.Logger, registry prometheus.Registerer) (*CircuitBreaker, error) {
	if config.FailureThreshold == 0 {
		return nil, errors.New("circuit breaker failure threshold must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &CircuitBreaker{
		name:   config.Name,
		logger: logger,
	}

	labels := prometheus.Labels{"name": config.Name}
	b.stateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "concierge_circuit_breaker_state",
		Help:        "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		ConstLabels: labels,
	})
	b.failuresCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "concierge_circuit_breaker_failures_total",
		Help:        "Total number of failures recorded by the circuit breaker",
		ConstLabels: labels,
	})
	b.tripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "concierge_circuit_breaker_trips_total",
		Help:        "Total number of times the circuit breaker has tripped",
		ConstLabels: labels,
	})

	if !config.TestMode && registry != nil {
		for _, c := range []prometheus.Collector{b.stateGauge, b.failuresCount, b.tripsTotal} {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
	}

	threshold := config.FailureThreshold
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: b.onStateChange,
		IsSuccessful:  isSuccessful,
	})

	return b, nil
}

// isSuccessful keeps client disconnects from counting against the service.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func (b *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	b.stateGauge.Set(float64(to))
	if to == gobreaker.StateOpen {
		b.tripsTotal.Inc()
		b.logger.Warn("Circuit breaker tripped",
			zap.String("name", name),
			zap.String("from", from.String()),
		)
		return
	}
	b.logger.Info("Circuit breaker state changed",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// Execute runs f if the circuit allows it. A rejected call returns
// ErrCircuitOpen without running f.
func (b *CircuitBreaker) Execute(f func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, f()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	if !isSuccessful(err) {
		b.failuresCount.Inc()
	}
	return err
}

// State returns the current state of the circuit.
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the request counts of the current interval.
func (b *CircuitBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.name
}
