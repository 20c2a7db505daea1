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
	"airmon/internal/events"
	"airmon/internal/monitor"
	"airmon/internal/readings"
	"airmon/pkg/eventbus"
	"airmon/pkg/logger"
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

//go:embed www
var assets embed.FS

// History is the part of the monitor service the dashboard reads from.
type History interface {
	History(name string) []monitor.HistoryEntry
	Summarize(name string, interval time.Duration) (monitor.Summary, error)
}

// ReadingsView is the /api/readings payload. Ages are in seconds, -1 when
// the quantity has never been read.
type ReadingsView struct {
	readings.Snapshot
	CO2AgeSeconds         float64 `json:"co2_age_seconds"`
	TemperatureAgeSeconds float64 `json:"temperature_age_seconds"`
	HumidityAgeSeconds    float64 `json:"humidity_age_seconds"`
}

// Service serves the dashboard page, its JSON api and a websocket that
// receives every new snapshot.
type Service struct {
	store   *readings.Store
	history History
	bus     *eventbus.Bus
	clients *clientSync
	mux     *http.ServeMux
	log     *logger.Logger
}

func New(store *readings.Store, history History, bus *eventbus.Bus) *Service {
	s := &Service{
		store:   store,
		history: history,
		bus:     bus,
		clients: newClientSync(),
		log:     logger.New("Dashboard"),
	}

	www, _ := fs.Sub(assets, "www")
	mux := http.NewServeMux()
	mux.HandleFunc("/api/readings", s.handleAPIReadings)
	mux.HandleFunc("/api/history", s.handleAPIHistory)
	mux.HandleFunc("/api/summary", s.handleAPISummary)
	mux.HandleFunc("/ws", s.serveWebSockets())
	mux.Handle("/", http.FileServer(http.FS(www)))
	s.mux = mux
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run forwards every readings update to the connected websocket clients.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	updates, unsub := s.bus.Subscribe(ctx, events.TopicReadings, true)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			s.clients.closeAll()
			s.log.Info("Stopped")
			return
		case ev, ok := <-updates:
			if !ok {
				s.clients.closeAll()
				return
			}
			if update, ok := ev.(events.ReadingsUpdate); ok {
				s.broadcast(s.view(update.Snapshot, update.Time))
			}
		}
	}
}

func (s *Service) view(snap readings.Snapshot, now time.Time) ReadingsView {
	co2Age, tAge, hAge := snap.Age(now)
	return ReadingsView{
		Snapshot:              snap,
		CO2AgeSeconds:         seconds(co2Age),
		TemperatureAgeSeconds: seconds(tAge),
		HumidityAgeSeconds:    seconds(hAge),
	}
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return -1
	}
	return d.Seconds()
}

func (s *Service) broadcast(msg ReadingsView) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		s.log.Error("failed to prepare message: %v", err)
		return
	}
	s.clients.broadcast(pm, s.log)
}

// ---------- API Endpoints ----------

func (s *Service) handleAPIReadings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.view(s.store.Snapshot(), time.Now())); err != nil {
		s.log.Error("failed to encode readings: %v", err)
	}
}

func validSeries(id string) bool {
	switch id {
	case monitor.SeriesCO2, monitor.SeriesTemperature, monitor.SeriesHumidity:
		return true
	}
	return false
}

func (s *Service) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !validSeries(id) {
		http.Error(w, "unknown or missing 'id' parameter", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.history.History(id)); err != nil {
		s.log.Error("failed to encode history for id %s: %v", id, err)
	}
}

// handleAPISummary aggregates one series, ?id=co2&hours=1 (default 1 hour).
func (s *Service) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !validSeries(id) {
		http.Error(w, "unknown or missing 'id' parameter", http.StatusBadRequest)
		return
	}
	hours := 1.0
	if h := r.URL.Query().Get("hours"); h != "" {
		v, err := strconv.ParseFloat(h, 64)
		if err != nil || v <= 0 {
			http.Error(w, "invalid 'hours' parameter", http.StatusBadRequest)
			return
		}
		hours = v
	}

	sum, err := s.history.Summarize(id, time.Duration(hours*float64(time.Hour)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sum); err != nil {
		s.log.Error("failed to encode summary for id %s: %v", id, err)
	}
}

// checkOrigin accepts a page served from the same host name, or from
// localhost. Requests without an Origin are rejected.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return false
	}
	if u.Hostname() == "localhost" {
		return true
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		host = h
	}
	return strings.EqualFold(u.Hostname(), host)
}

func (s *Service) serveWebSockets() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			ok := checkOrigin(r)
			if !ok {
				s.log.Debug("rejected websocket origin %q for host %q", r.Header.Get("Origin"), r.Host)
			}
			return ok
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Error("failed to upgrade websocket: %v", err)
			return
		}
		s.clients.add(ws)
		defer func() {
			s.clients.remove(ws)
			ws.Close()
		}()

		// new clients get the current state straight away
		data, err := json.Marshal(s.view(s.store.Snapshot(), time.Now()))
		if err == nil {
			pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
			if err == nil {
				s.clients.broadcastTo(ws, pm)
			}
		}

		// read until the client goes away; the dashboard never sends commands
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Debug("websocket read: %v", err)
				}
				return
			}
		}
	}
}
