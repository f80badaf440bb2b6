package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"

	"github.com/eapache/queue/v2"

	"github.com/teilomillet/concierge/errors"
	"github.com/teilomillet/concierge/server/metrics"
)

// ErrQueueFull is returned when no slot is free and the wait queue is at capacity.
var ErrQueueFull = stderrors.New("admission queue is full")

// waiter is a request parked in the admission queue. ready is closed when a
// slot is handed to it.
type waiter struct {
	ready     chan struct{}
	abandoned bool
}

// Admission caps how many inquiries run at once. Each inquiry holds up to
// two completion calls open, so excess requests wait in a FIFO queue and
// are admitted in arrival order as slots free up. Requests beyond the queue
// capacity are turned away with 503.
//
// A slot freed while requests are waiting passes straight to the head of
// the queue, so a new arrival never overtakes a queued one.
type Admission struct {
	mu       sync.Mutex
	waiting  *queue.Queue[*waiter]
	queued   int // waiters still interested; abandoned ones stay in waiting until skipped
	inFlight int

	maxConcurrent int
	maxQueued     int
	metrics       *metrics.Metrics
}

// NewAdmission creates an admission queue. maxConcurrent <= 0 disables the
// cap; maxQueued < 0 is treated as 0. m may be nil.
func NewAdmission(maxConcurrent, maxQueued int, m *metrics.Metrics) *Admission {
	if maxQueued < 0 {
		maxQueued = 0
	}
	return &Admission{
		waiting:       queue.New[*waiter](),
		maxConcurrent: maxConcurrent,
		maxQueued:     maxQueued,
		metrics:       m,
	}
}

// Acquire takes a slot, waiting in line if none is free. It returns
// ErrQueueFull when the line is full, or ctx's error if ctx ends first.
// Every successful Acquire must be paired with Release.
func (a *Admission) Acquire(ctx context.Context) error {
	if a.maxConcurrent <= 0 {
		return nil
	}

	a.mu.Lock()
	if a.inFlight < a.maxConcurrent && a.queued == 0 {
		a.inFlight++
		a.report()
		a.mu.Unlock()
		return nil
	}
	if a.queued >= a.maxQueued {
		a.mu.Unlock()
		if a.metrics != nil {
			a.metrics.ErrorsTotal.WithLabelValues("queue_full").Inc()
		}
		return ErrQueueFull
	}
	w := &waiter{ready: make(chan struct{})}
	a.waiting.Add(w)
	a.queued++
	a.report()
	a.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		a.mu.Lock()
		select {
		case <-w.ready:
			// The slot arrived together with the cancellation; pass it on.
			a.mu.Unlock()
			a.Release()
		default:
			w.abandoned = true
			a.queued--
			a.report()
			a.mu.Unlock()
		}
		return ctx.Err()
	}
}

// Release frees a slot, handing it to the oldest waiter if there is one.
func (a *Admission) Release() {
	if a.maxConcurrent <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.report()

	for a.waiting.Length() > 0 {
		w := a.waiting.Remove()
		if w.abandoned {
			continue
		}
		a.queued--
		close(w.ready)
		return
	}
	a.inFlight--
}

// Stats returns the number of running and waiting requests.
func (a *Admission) Stats() (inFlight, queued int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight, a.queued
}

// report must be called with mu held.
func (a *Admission) report() {
	if a.metrics == nil {
		return
	}
	a.metrics.ActiveRequests.WithLabelValues("processing").Set(float64(a.inFlight))
	a.metrics.ActiveRequests.WithLabelValues("queued").Set(float64(a.queued))
}

// Handler admits requests through the queue. A full queue yields 503; a
// request whose deadline passes while queued yields 504.
func (a *Admission) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Acquire(r.Context()); err != nil {
			requestID := GetRequestID(r.Context())
			switch {
			case stderrors.Is(err, ErrQueueFull):
				errors.WriteError(w, errors.NewError(errors.UnavailableError, "Server is busy", http.StatusServiceUnavailable,
					requestID, map[string]interface{}{"suggestion": "Please retry shortly"}, err))
			case stderrors.Is(err, context.DeadlineExceeded):
				errors.WriteError(w, errors.NewTimeoutError(requestID, err))
			}
			// A canceled request has no one left to answer.
			return
		}
		defer a.Release()

		next.ServeHTTP(w, r)
	})
}
