// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"sync"
	"sync/atomic"

	"github.com/nexus-goc/commandroom/lib/schema"
)

// busBufferSize is the per-subscriber buffer of a [Bus]. A subscriber
// that falls further behind loses events.
const busBufferSize = 64

// Bus is a room's ephemeral broadcast channel. Safe for concurrent use.
type Bus struct {
	mutex       sync.Mutex
	subscribers map[*BusSubscription]struct{}
	closed      bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func newBus() *Bus {
	return &Bus{subscribers: make(map[*BusSubscription]struct{})}
}

// BusSubscription receives events published after it was opened.
type BusSubscription struct {
	bus     *Bus
	channel chan schema.RoomEvent
	dropped atomic.Uint64
	once    sync.Once
}

// C delivers events. It is closed when the subscription or the bus is
// closed.
func (s *BusSubscription) C() <-chan schema.RoomEvent { return s.channel }

// Dropped returns how many events this subscriber lost to a full buffer.
func (s *BusSubscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes. Safe to call more than once.
func (s *BusSubscription) Close() {
	s.bus.mutex.Lock()
	defer s.bus.mutex.Unlock()
	if _, ok := s.bus.subscribers[s]; ok {
		delete(s.bus.subscribers, s)
		s.closeChannel()
	}
}

func (s *BusSubscription) closeChannel() {
	s.once.Do(func() { close(s.channel) })
}

// Subscribe opens a subscription. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe() *BusSubscription {
	subscription := &BusSubscription{
		bus:     b,
		channel: make(chan schema.RoomEvent, busBufferSize),
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		subscription.closeChannel()
		return subscription
	}
	b.subscribers[subscription] = struct{}{}
	return subscription
}

// Publish delivers event to every open subscription without blocking.
func (b *Bus) Publish(event schema.RoomEvent) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	for subscription := range b.subscribers {
		select {
		case subscription.channel <- event:
		default:
			subscription.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subscribers)
}

// Published returns how many events were published.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Dropped returns the total number of per-subscriber drops.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus) close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for subscription := range b.subscribers {
		subscription.closeChannel()
	}
	b.subscribers = nil
}
