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
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// fakeNATSServer speaks just enough of the client protocol for nats.Connect
// to succeed. The returned channel is closed when the client hangs up.
func fakeNATSServer(t *testing.T) (string, <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	hungUp := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer close(hungUp)

		conn.Write([]byte(`INFO {"server_id":"fake","version":"2.10.0","proto":1,"headers":true,"max_payload":1048576}` + "\r\n"))
		rd := bufio.NewReader(conn)
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "PING") {
				conn.Write([]byte("PONG\r\n"))
			}
		}
	}()
	return "nats://" + ln.Addr().String(), hungUp
}

func TestNATSCloseIsImmediate(t *testing.T) {
	is := is.New(t)
	url, hungUp := fakeNATSServer(t)

	nc, err := nats.Connect(url, nats.Timeout(2*time.Second))
	is.NoErr(err)
	js, err := jetstream.New(nc)
	is.NoErr(err)

	sink := NewNATS(url, "AIRMON_READINGS", "airmon.test.readings")
	sink.nc, sink.js = nc, js
	sink.Close()

	is.True(nc.IsClosed()) // closed on return, not left draining
	is.True(sink.nc == nil)

	select {
	case <-hungUp:
	case <-time.After(2 * time.Second):
		t.Fatal("connection still open after Close")
	}

	sink.Close() // second close is a no-op
}
