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

package dashboard

import (
	"airmon/pkg/logger"
	"sync"

	"github.com/gorilla/websocket"
)

type clientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func newClientSync() *clientSync {
	return &clientSync{clients: make(map[*websocket.Conn]bool)}
}

func (c *clientSync) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Debug("dropping client after write error: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *clientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *clientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSync) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.clients)
}

func (c *clientSync) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

// broadcastTo writes to one client under the same lock as broadcast, so
// writes on a connection never interleave.
func (c *clientSync) broadcastTo(ws *websocket.Conn, pm *websocket.PreparedMessage) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.clients[ws] {
		return
	}
	if err := ws.WritePreparedMessage(pm); err != nil {
		ws.Close()
		delete(c.clients, ws)
	}
}
