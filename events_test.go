package artisan_test

import (
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-artisan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFanOut(t *testing.T) {
	broker := artisan.NewBroker()
	first := broker.Subscribe(1)
	second := broker.Subscribe(1)
	defer first.Unsubscribe()
	defer second.Unsubscribe()

	evt := artisan.UpdateEvent{ID: "1", Status: artisan.StatusBlocked}
	assert.Equal(t, 2, broker.Publish(evt))

	assert.Equal(t, evt, <-first.C())
	assert.Equal(t, evt, <-second.C())
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	broker := artisan.NewBroker()
	sub := broker.Subscribe(1)
	defer sub.Unsubscribe()

	assert.Equal(t, 1, broker.Publish(artisan.UpdateEvent{ID: "1"}))
	assert.Equal(t, 0, broker.Publish(artisan.UpdateEvent{ID: "2"}))

	got := <-sub.C()
	assert.Equal(t, "1", got.ID)
}

func TestBrokerUnsubscribe(t *testing.T) {
	broker := artisan.NewBroker()
	sub := broker.Subscribe(0)
	require.Equal(t, 1, broker.Subscribers())

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 0, broker.Subscribers())
	_, open := <-sub.C()
	assert.False(t, open)
	assert.Equal(t, 0, broker.Publish(artisan.UpdateEvent{ID: "1"}))
}

func TestBrokerSubscribeFunc(t *testing.T) {
	broker := artisan.NewBroker()

	var mu sync.Mutex
	var seen []string
	stop := broker.SubscribeFunc(func(evt artisan.UpdateEvent) {
		mu.Lock()
		seen = append(seen, evt.ID)
		mu.Unlock()
	})

	broker.Publish(artisan.UpdateEvent{ID: "1"})
	broker.Publish(artisan.UpdateEvent{ID: "2"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)

	stop()
	assert.Equal(t, 0, broker.Subscribers())
}

func TestBrokerSubscribeFuncUnsubscribeFromCallback(t *testing.T) {
	broker := artisan.NewBroker()

	var stop func()
	ready := make(chan struct{})
	returned := make(chan struct{})
	stop = broker.SubscribeFunc(func(evt artisan.UpdateEvent) {
		<-ready
		stop()
		close(returned)
	})
	close(ready)

	broker.Publish(artisan.UpdateEvent{ID: "1"})

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe from inside the callback did not return")
	}
	require.Eventually(t, func() bool {
		return broker.Subscribers() == 0
	}, time.Second, time.Millisecond)

	stop()
}

func TestUpdateEventApplyTo(t *testing.T) {
	failed := artisan.IDStatusFailed
	noActivity := false
	row := &artisan.Artisan{
		ID:     "2",
		Status: artisan.StatusPending,
		KYC:    artisan.KYC{IDStatus: artisan.IDStatusVerifying},
		Stats:  artisan.Stats{HasActivity: true},
	}

	other := artisan.UpdateEvent{ID: "9", Status: artisan.StatusBlocked}
	assert.False(t, other.ApplyTo(row))
	assert.Equal(t, artisan.StatusPending, row.Status)

	evt := artisan.UpdateEvent{
		ID:     "2",
		Status: artisan.StatusActive,
		Patch:  &artisan.Patch{IDStatus: &failed, HasActivity: &noActivity},
	}
	assert.True(t, evt.ApplyTo(row))
	assert.Equal(t, artisan.StatusActive, row.Status)
	assert.Equal(t, artisan.IDStatusFailed, row.KYC.IDStatus)
	assert.False(t, row.Stats.HasActivity)

	assert.False(t, evt.ApplyToRows([]*artisan.Artisan{{ID: "1"}, {ID: "3"}}))
}
