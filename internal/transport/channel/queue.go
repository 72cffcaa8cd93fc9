package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-relay/internal/domain"
)

var (
	// ErrQueueComplete is returned by Push once Complete has been called.
	ErrQueueComplete = errors.New("queue: complete, no further submissions accepted")

	// ErrQueueAbandoned is returned by every operation after Abandon.
	ErrQueueAbandoned = errors.New("queue: abandoned")

	// ErrDrained is returned by Dequeue when the queue is complete, empty,
	// and no parked retry is still waiting.
	ErrDrained = errors.New("queue: drained")
)

type parked struct {
	env   domain.Envelope
	timer *time.Timer
}

// Queue is an unbounded FIFO of envelopes. Push never blocks.
// Delayed retries are parked on timers and appended to the tail when due.
type Queue struct {
	mu       sync.Mutex
	items    []domain.Envelope
	parked   map[uint64]parked
	seq      uint64
	complete bool
	abandon  bool
	active   uuid.UUID // dequeued and not yet released with Done

	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		parked: make(map[uint64]parked),
		signal: make(chan struct{}, 1),
	}
}

// Push appends a producer submission at the tail.
func (q *Queue) Push(env domain.Envelope) error {
	q.mu.Lock()
	if q.abandon {
		q.mu.Unlock()
		return ErrQueueAbandoned
	}
	if q.complete {
		q.mu.Unlock()
		return ErrQueueComplete
	}
	q.items = append(q.items, env)
	q.mu.Unlock()

	q.notify()
	return nil
}

// Requeue appends a retry at the tail. Unlike Push it is accepted after
// Complete so that in-progress work can drain.
func (q *Queue) Requeue(env domain.Envelope) error {
	q.mu.Lock()
	if q.abandon {
		q.mu.Unlock()
		return ErrQueueAbandoned
	}
	q.items = append(q.items, env)
	q.mu.Unlock()

	q.notify()
	return nil
}

// RequeueAfter parks env and appends it to the tail once delay has elapsed.
func (q *Queue) RequeueAfter(env domain.Envelope, delay time.Duration) error {
	if delay <= 0 {
		return q.Requeue(env)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.abandon {
		return ErrQueueAbandoned
	}

	q.seq++
	id := q.seq
	timer := time.AfterFunc(delay, func() { q.release(id) })
	q.parked[id] = parked{env: env, timer: timer}
	return nil
}

func (q *Queue) release(id uint64) {
	q.mu.Lock()
	p, ok := q.parked[id]
	if ok {
		delete(q.parked, id)
		q.items = append(q.items, p.env)
	}
	q.mu.Unlock()

	if ok {
		q.notify()
	}
}

// Dequeue blocks until an envelope is available. The returned request stays
// visible to Contains until the consumer calls Done. It returns ErrDrained when
// the queue is complete and nothing is left or parked, ErrQueueAbandoned
// after Abandon, or the context error.
func (q *Queue) Dequeue(ctx context.Context) (domain.Envelope, error) {
	for {
		q.mu.Lock()
		if q.abandon {
			q.mu.Unlock()
			return domain.Envelope{}, ErrQueueAbandoned
		}
		if len(q.items) > 0 {
			env := q.items[0]
			q.items[0] = domain.Envelope{}
			q.items = q.items[1:]
			q.active = env.Request.ID
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return env, nil
		}
		if q.complete && len(q.parked) == 0 {
			q.mu.Unlock()
			q.notify()
			return domain.Envelope{}, ErrDrained
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return domain.Envelope{}, ctx.Err()
		}
	}
}

// Done releases the request handed out by the last Dequeue. Requeue the
// envelope before calling Done so Contains never misses it.
func (q *Queue) Done(id uuid.UUID) {
	q.mu.Lock()
	if q.active == id {
		q.active = uuid.Nil
	}
	q.mu.Unlock()
}

// Complete rejects further Push calls. Queued and parked envelopes stay.
func (q *Queue) Complete() {
	q.mu.Lock()
	q.complete = true
	q.mu.Unlock()
	q.notify()
}

// Abandon stops every parked timer and returns everything still held,
// queued items first. The queue is unusable afterwards.
func (q *Queue) Abandon() []domain.Envelope {
	q.mu.Lock()
	q.complete = true
	q.abandon = true

	left := make([]domain.Envelope, 0, len(q.items)+len(q.parked))
	left = append(left, q.items...)
	q.items = nil
	for id, p := range q.parked {
		p.timer.Stop()
		left = append(left, p.env)
		delete(q.parked, id)
	}
	q.mu.Unlock()

	q.notify()
	return left
}

// Len is the number of envelopes ready to dequeue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Parked is the number of retries waiting on a timer.
func (q *Queue) Parked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.parked)
}

// Contains reports whether a request is queued, parked or dequeued and
// not yet released.
func (q *Queue) Contains(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id != uuid.Nil && q.active == id {
		return true
	}

	for _, env := range q.items {
		if env.Request.ID == id {
			return true
		}
	}
	for _, p := range q.parked {
		if p.env.Request.ID == id {
			return true
		}
	}
	return false
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
