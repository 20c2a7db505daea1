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

package datalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Record is the JetStream message body.
type Record struct {
	Node   string             `json:"node"`
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// NATS publishes records to a JetStream subject. The connection is made on
// first use and remade after a failure, so a broker that is down at start
// does not stop the service.
type NATS struct {
	url     string
	stream  string
	subject string

	mu sync.Mutex
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNATS(url, stream, subject string) *NATS {
	return &NATS{url: url, stream: stream, subject: subject}
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) connect(ctx context.Context) (jetstream.JetStream, error) {
	if n.js != nil && n.nc.IsConnected() {
		return n.js, nil
	}
	n.closeLocked()

	nc, err := nats.Connect(n.url,
		nats.Name("airmon"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", n.url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      n.stream,
		Subjects:  []string{n.subject},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", n.stream, err)
	}

	n.nc, n.js = nc, js
	return js, nil
}

func (n *NATS) Send(ctx context.Context, node string, at time.Time, values map[string]float64) error {
	payload, err := json.Marshal(Record{Node: node, Time: at, Values: values})
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	js, err := n.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := js.Publish(ctx, n.subject, payload); err != nil {
		n.closeLocked()
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// closeLocked closes the connection at once. Publishes are acknowledged
// synchronously, so there is nothing buffered worth draining.
func (n *NATS) closeLocked() {
	if n.nc != nil {
		n.nc.Close()
	}
	n.nc, n.js = nil, nil
}

func (n *NATS) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked()
}
