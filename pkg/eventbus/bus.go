// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package eventbus

import (
	"airmon/pkg/logger"
	"context"
	"sync"
	"sync/atomic"
)

type Topic string
type Event = any

// Bus is an in-memory pub/sub where each subscriber only ever holds the
// most recent event of its topic. Slow consumers see fresh data, never a
// backlog.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Topic]map[uint64]chan Event
	last      map[Topic]Event
	idCounter atomic.Uint64
	closed    atomic.Bool
	log       *logger.Logger

	published atomic.Int64
	delivered atomic.Int64
	replaced  atomic.Int64
	dropped   atomic.Int64
}

// Stats counts deliveries since the bus was created.
type Stats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Replaced  int64 `json:"replaced"`
	Dropped   int64 `json:"dropped"`
}

func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]chan Event),
		last: make(map[Topic]Event),
		log:  logger.New("EventBus"),
	}
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Replaced:  b.replaced.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Publish stores ev as the last event of topic and hands it to every
// subscriber, replacing whatever the subscriber had not consumed yet.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}
	b.published.Add(1)

	b.mu.Lock()
	b.last[topic] = ev
	chans := make([]chan Event, 0, len(b.subs[topic]))
	for _, ch := range b.subs[topic] {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		b.deliver(ch, ev)
	}
}

// deliver never blocks: a full channel has its stale value swapped out.
func (b *Bus) deliver(ch chan Event, ev Event) {
	defer func() {
		// the subscription may have been closed between snapshot and send
		if recover() != nil {
			b.dropped.Add(1)
		}
	}()

	select {
	case ch <- ev:
		b.delivered.Add(1)
		return
	default:
	}

	select {
	case <-ch:
		b.replaced.Add(1)
	default:
	}
	select {
	case ch <- ev:
		b.delivered.Add(1)
	default:
		b.log.Debug("dropped event: %+v", ev)
		b.dropped.Add(1)
	}
}

// Subscribe returns a channel carrying the latest event of topic. With
// withLast the stored last event, if any, is delivered right away. The
// channel is closed when ctx ends or the returned func is called.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	if b.closed.Load() {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 1)
	id := b.idCounter.Add(1)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch
	last, hasLast := b.last[topic]
	b.mu.Unlock()

	if withLast && hasLast {
		b.deliver(ch, last)
	}

	done := make(chan struct{})
	var once sync.Once
	unsub := func() { once.Do(func() { close(done) }) }

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		m, ok := b.subs[topic]
		if !ok {
			return // Close already closed it
		}
		if _, ok := m[id]; !ok {
			return
		}
		delete(m, id)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
		close(ch)
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Close closes every subscriber channel. Afterwards Publish is a no-op and
// Subscribe hands out closed channels.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = make(map[Topic]map[uint64]chan Event)
	b.last = make(map[Topic]Event)
	b.mu.Unlock()
}
