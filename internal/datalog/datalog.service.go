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
	"airmon/internal/config"
	"airmon/internal/readings"
	"airmon/pkg/logger"
	"context"
	"time"
)

// Sink delivers one set of values for a node.
type Sink interface {
	Name() string
	Send(ctx context.Context, node string, at time.Time, values map[string]float64) error
	Close()
}

type Service struct {
	store    *readings.Store
	sinks    []Sink
	node     string
	interval time.Duration
	log      *logger.Logger
}

// New builds the configured sinks. With no sink configured the service
// only logs that it is idle.
func New(store *readings.Store, appConf *config.Config) *Service {
	conf := appConf.DataLogger
	s := &Service{
		store:    store,
		node:     conf.Node,
		interval: time.Duration(conf.IntervalSeconds) * time.Second,
		log:      logger.New("DataLogger"),
	}
	if conf.EmonCMSAddr != "" {
		s.sinks = append(s.sinks, NewEmonCMS(conf.EmonCMSAddr, conf.EmonCMSApiKey))
	}
	if conf.NATSURL != "" {
		s.sinks = append(s.sinks, NewNATS(conf.NATSURL, conf.NATSStream, conf.NATSSubject))
	}
	return s
}

// Values maps the quantities that have been read at least once to their
// latest value.
func Values(snap readings.Snapshot) map[string]float64 {
	values := make(map[string]float64, 3)
	if !snap.CO2At.IsZero() {
		values["co2_ppm"] = float64(snap.CO2PPM)
	}
	if !snap.TemperatureAt.IsZero() {
		values["temperature_c"] = snap.TemperatureC
	}
	if !snap.HumidityAt.IsZero() {
		values["humidity_pct"] = snap.HumidityPct
	}
	return values
}

func (s *Service) tick(ctx context.Context) {
	values := Values(s.store.Snapshot())
	if len(values) == 0 {
		s.log.Debug("nothing read yet, skipping")
		return
	}
	now := time.Now()
	for _, sink := range s.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := sink.Send(sendCtx, s.node, now, values); err != nil {
			s.log.Error("%s: %v", sink.Name(), err)
		}
		cancel()
	}
}

func (s *Service) Run(ctx context.Context) {
	if len(s.sinks) == 0 {
		s.log.Info("no sink configured, idle")
		<-ctx.Done()
		return
	}
	s.log.Info("Running... (every %v, %d sinks)", s.interval, len(s.sinks))
	defer s.log.Info("Stopped.")
	defer func() {
		for _, sink := range s.sinks {
			sink.Close()
		}
	}()

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.tick(ctx)
		}
	}
}
