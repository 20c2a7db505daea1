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

package monitor

import (
	"airmon/internal/climate"
	"airmon/internal/co2"
	"airmon/internal/config"
	"airmon/internal/events"
	"airmon/internal/readings"
	"airmon/pkg/eventbus"
	"airmon/pkg/logger"
	"context"
	"path/filepath"
	"sync"
	"time"
)

const snapshotFilename = "airmon_history.json.gz"

// History series names.
const (
	SeriesCO2         = "co2"
	SeriesTemperature = "temperature"
	SeriesHumidity    = "humidity"
)

var seriesNames = []string{SeriesCO2, SeriesTemperature, SeriesHumidity}

type CO2Reader interface {
	Read(ctx context.Context) co2.Result
}

type ClimateReader interface {
	Read() climate.Result
}

// Recorder receives per-read outcomes and the snapshot after each cycle.
type Recorder interface {
	ObserveRead(sensor, status string)
	ObserveSnapshot(readings.Snapshot)
}

// Service is the single polling loop. It is the only caller of both readers,
// so each sensor handle is used from one goroutine and reads never overlap.
type Service struct {
	co2      CO2Reader
	climate  ClimateReader
	store    *readings.Store
	bus      *eventbus.Bus
	recorder Recorder
	log      *logger.Logger

	interval      time.Duration
	window        time.Duration
	snapshotEvery time.Duration
	snapshotFile  string

	mu      sync.RWMutex
	history map[string][]HistoryEntry
	cycle   uint64
}

// New wires the readers. Either reader may be nil when its sensor is not
// fitted; recorder may be nil.
func New(co2Reader CO2Reader, climateReader ClimateReader, store *readings.Store, recorder Recorder, appConf *config.Config) *Service {
	s := &Service{
		co2:           co2Reader,
		climate:       climateReader,
		store:         store,
		bus:           appConf.EventBus,
		recorder:      recorder,
		log:           logger.New("Monitor"),
		interval:      time.Duration(appConf.Monitor.PollIntervalSeconds) * time.Second,
		window:        time.Duration(appConf.Monitor.HistoryHours) * time.Hour,
		snapshotEvery: time.Duration(appConf.Monitor.SnapshotIntervalMinutes) * time.Minute,
		history:       make(map[string][]HistoryEntry),
	}
	if appConf.DataDir != "" {
		s.snapshotFile = filepath.Join(appConf.DataDir, snapshotFilename)
		s.loadFromDisk()
	}
	return s
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running... (every %v)", s.interval)

	s.pollOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	snapshotTicker := time.NewTicker(s.snapshotEvery)
	defer snapshotTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.saveToDisk()
			s.log.Info("Stopped")
			return
		case <-ticker.C:
			start := time.Now()
			s.pollOnce(ctx)
			s.log.Debug("cycle %d finished in %v", s.Cycle(), time.Since(start))
		case <-snapshotTicker.C:
			s.saveToDisk()
		}
	}
}

// pollOnce runs the CO2 exchange and then the climate read, strictly in
// that order, and publishes the resulting snapshot.
func (s *Service) pollOnce(ctx context.Context) {
	if s.co2 != nil {
		res := s.co2.Read(ctx)
		s.observe(SeriesCO2, res.Status.String())
		if res.Status == co2.StatusOK {
			s.record(SeriesCO2, float64(res.PPM))
		}
	}
	if ctx.Err() != nil {
		return
	}

	if s.climate != nil {
		res := s.climate.Read()
		s.observe(SeriesTemperature, outcome(res.TemperatureUpdated))
		s.observe(SeriesHumidity, outcome(res.HumidityUpdated))
		if res.TemperatureUpdated {
			s.record(SeriesTemperature, res.TemperatureC)
		}
		if res.HumidityUpdated {
			s.record(SeriesHumidity, res.HumidityPct)
		}
	}

	snap := s.store.Snapshot()
	if s.recorder != nil {
		s.recorder.ObserveSnapshot(snap)
	}

	s.mu.Lock()
	s.cycle++
	cycle := s.cycle
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.TopicReadings, events.ReadingsUpdate{
			Snapshot: snap,
			Cycle:    cycle,
			Time:     time.Now(),
		})
	}
}

func outcome(updated bool) string {
	if updated {
		return "ok"
	}
	return "nan"
}

func (s *Service) observe(sensor, status string) {
	if s.recorder != nil {
		s.recorder.ObserveRead(sensor, status)
	}
}

func (s *Service) Cycle() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle
}
