package mq

import (
	"sync"
	"time"
)

// ReferralEvent is published whenever a referral edge is recorded.
type ReferralEvent struct {
	ReferrerID string    `json:"referrer_id"`
	ReferredID string    `json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Queue interface {
	Publish(evt ReferralEvent) error
	Subscribe() <-chan ReferralEvent
	Close() error
}

type MemoryQueue struct {
	mu     sync.Mutex
	ch     chan ReferralEvent
	closed bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan ReferralEvent, size)}
}

// Publish enqueues evt. The mutex spans the send so Close can never sneak in
// between the closed check and the send; a full buffer drops the event
// rather than deadlocking a publisher that holds the lock.
func (q *MemoryQueue) Publish(evt ReferralEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	select {
	case q.ch <- evt:
	default:
	}
	return nil
}

func (q *MemoryQueue) Subscribe() <-chan ReferralEvent {
	return q.ch
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}
