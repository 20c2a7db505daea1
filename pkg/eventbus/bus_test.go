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
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
)

const topic Topic = "readings"

func TestSubscriberOnlySeesLatest(t *testing.T) {
	is := is.New(t)
	b := New()

	ch, unsub := b.Subscribe(context.Background(), topic, false)
	defer unsub()

	b.Publish(topic, 400)
	b.Publish(topic, 410)
	b.Publish(topic, 420)

	is.Equal(<-ch, 420)
	is.Equal(b.Stats().Published, int64(3))
	is.Equal(b.Stats().Replaced, int64(2))
}

func TestSubscribeWithLast(t *testing.T) {
	is := is.New(t)
	b := New()

	b.Publish(topic, "first")
	ch, unsub := b.Subscribe(context.Background(), topic, true)
	defer unsub()

	select {
	case ev := <-ch:
		is.Equal(ev, "first")
	case <-time.After(time.Second):
		t.Fatal("last event was not delivered")
	}

	last, ok := b.GetLast(topic)
	is.True(ok)
	is.Equal(last, "first")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	is := is.New(t)
	b := New()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, topic, false)
	cancel()

	select {
	case _, ok := <-ch:
		is.True(!ok) // channel closed after ctx cancel
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestClose(t *testing.T) {
	is := is.New(t)
	b := New()

	ch, _ := b.Subscribe(context.Background(), topic, false)
	b.Close()
	b.Close()

	_, ok := <-ch
	is.True(!ok)

	b.Publish(topic, 1) // no-op, must not panic
	late, _ := b.Subscribe(context.Background(), topic, false)
	_, ok = <-late
	is.True(!ok)
}
