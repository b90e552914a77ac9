package artisan

import (
	"sync"
	"sync/atomic"
)

// Patch carries list visible fields that changed alongside the status.
type Patch struct {
	IDStatus    *IDStatus `json:"idStatus,omitempty"`
	HasActivity *bool     `json:"hasActivity,omitempty"`
}

// UpdateEvent is broadcast after every externally relevant mutation so open
// list views can patch their row without reloading.
type UpdateEvent struct {
	ID     string `json:"id"`
	Status Status `json:"status,omitempty"`
	Patch  *Patch `json:"patch,omitempty"`
}

// ApplyTo patches a list row with the event. It returns false when the row
// belongs to another artisan.
func (e UpdateEvent) ApplyTo(row *Artisan) bool {
	if row == nil || row.ID != e.ID {
		return false
	}
	if e.Status != "" {
		row.Status = e.Status
	}
	if e.Patch != nil {
		if e.Patch.IDStatus != nil {
			row.KYC.IDStatus = *e.Patch.IDStatus
		}
		if e.Patch.HasActivity != nil {
			row.Stats.HasActivity = *e.Patch.HasActivity
		}
	}
	return true
}

// ApplyToRows patches the matching row in a list, reporting whether one matched.
func (e UpdateEvent) ApplyToRows(rows []*Artisan) bool {
	for _, row := range rows {
		if e.ApplyTo(row) {
			return true
		}
	}
	return false
}

// Publisher is the producer side of the broker.
type Publisher interface {
	Publish(evt UpdateEvent) int
}

// DefaultSubscriptionBuffer is used when Subscribe gets a non positive size.
const DefaultSubscriptionBuffer = 16

// Broker fans update events out to subscribers. Delivery is best effort: a
// subscriber whose buffer is full misses the event and the producer never blocks.
type Broker struct {
	mu   sync.RWMutex
	subs map[uint64]*Subscription
	next uint64
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*Subscription)}
}

// Subscription is a registered consumer.
type Subscription struct {
	id     uint64
	ch     chan UpdateEvent
	broker *Broker
	once   sync.Once
}

// C returns the event channel. It is closed by Unsubscribe.
func (s *Subscription) C() <-chan UpdateEvent {
	return s.ch
}

// Unsubscribe detaches the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.id)
		close(s.ch)
		s.broker.mu.Unlock()
	})
}

// Subscribe registers a consumer with the given buffer size.
func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:     b.next,
		ch:     make(chan UpdateEvent, buffer),
		broker: b,
	}
	b.next++
	b.subs[sub.id] = sub
	return sub
}

// SubscribeFunc runs fn for every event on its own goroutine until the returned
// function is called. Unsubscribe waits for the consumer goroutine to exit,
// except while fn is running: fn may unsubscribe itself, and the goroutine then
// stops once fn returns.
func (b *Broker) SubscribeFunc(fn func(UpdateEvent)) (unsubscribe func()) {
	sub := b.Subscribe(0)
	done := make(chan struct{})
	var inCallback atomic.Bool
	go func() {
		defer close(done)
		for evt := range sub.C() {
			inCallback.Store(true)
			fn(evt)
			inCallback.Store(false)
		}
	}()
	return func() {
		sub.Unsubscribe()
		if inCallback.Load() {
			return
		}
		<-done
	}
}

// Publish delivers evt to every subscriber with room in its buffer and returns
// how many received it.
func (b *Broker) Publish(evt UpdateEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of registered consumers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type noopPublisher struct{}

func (noopPublisher) Publish(UpdateEvent) int { return 0 }
