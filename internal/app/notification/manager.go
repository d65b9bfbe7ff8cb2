// Package notification fans session notifications out to subscribed streams.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Kind identifies what a notification carries.
type Kind string

const (
	KindStatus    Kind = "status"     // Playback or session status changed
	KindPlayEvent Kind = "play_event" // A play event was recorded
	KindLibrary   Kind = "library"    // The catalog changed
	KindError     Kind = "error"      // A user-visible error occurred
)

// Notification is a message pushed to every subscriber.
type Notification struct {
	SequenceNo uint64    `json:"sequence_no"`
	Kind       Kind      `json:"kind"`
	Time       time.Time `json:"time"`
	Payload    any       `json:"payload,omitempty"`
}

// Stream receives notifications for one subscriber.
type Stream interface {
	Send(*Notification) error
}

const (
	defaultSendTimeout = 500 * time.Millisecond
	// Subscribers that time out this many times in a row are dropped.
	maxMissedSends = 3
)

type subscription struct {
	id     string
	stream Stream
	missed atomic.Int32
}

// Manager tracks subscriptions and broadcasts notifications in sequence order.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	// Held for a whole broadcast so every stream sees sequence order
	broadcastMu sync.Mutex
	sequenceNo  atomic.Uint64

	sendTimeout time.Duration
	now         func() time.Time
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   defaultSendTimeout,
		now:           time.Now,
	}
}

// Subscribe adds a stream and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, stream: stream}
	zlog.Debug().Msgf("notification: subscribed: id=%s", id)
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Publish wraps payload in a notification and broadcasts it.
func (m *Manager) Publish(kind Kind, payload any) {
	m.Broadcast(&Notification{
		Kind:    kind,
		Time:    m.now(),
		Payload: payload,
	})
}

// Broadcast sends a notification to all subscribers in parallel, waiting at
// most the send timeout for each. Failing subscribers are removed at once;
// slow ones after maxMissedSends consecutive timeouts.
func (m *Manager) Broadcast(notification *Notification) {
	m.broadcastMu.Lock()
	defer m.broadcastMu.Unlock()

	notification.SequenceNo = m.sequenceNo.Add(1)

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Go(func() { m.deliver(sub, notification) })
	}
	wg.Wait()
}

func (m *Manager) deliver(sub *subscription, notification *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sub.stream.Send(notification)
	}()

	select {
	case err := <-done:
		if err != nil {
			zlog.Debug().Msgf("notification: dropping subscriber: id=%s err=%v", sub.id, err)
			m.Unsubscribe(sub.id)
			return
		}
		sub.missed.Store(0)
	case <-ctx.Done():
		missed := sub.missed.Add(1)
		zlog.Warn().Msgf("notification: send timed out: id=%s seq=%d missed=%d", sub.id, notification.SequenceNo, missed)
		if missed >= maxMissedSends {
			m.Unsubscribe(sub.id)
		}
	}
}

// Send delivers a notification to one subscriber. Unknown IDs are ignored.
func (m *Manager) Send(subscriptionID string, notification *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return sub.stream.Send(notification)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.subscriptions)
}
