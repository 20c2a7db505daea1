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

package ventilation

import (
	"airmon/internal/config"
	"airmon/internal/events"
	"airmon/internal/readings"
	"airmon/pkg/eventbus"
	"airmon/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Actuator is a callback to switch the fan
type Actuator func(on bool) error

// FanObserver is told about every fan state change.
type FanObserver interface {
	SetFan(on bool)
}

// State is the controller status served at /ventilation.
type State struct {
	FanOn      bool      `json:"fan_on"`
	LastChange time.Time `json:"last_change"`
	CO2PPM     int       `json:"co2_ppm"`
	Stale      bool      `json:"stale"`
	OnPPM      int       `json:"on_ppm"`
	OffPPM     int       `json:"off_ppm"`
}

// Controller switches a fan with hysteresis on the CO2 concentration:
// on at or above onPPM, off at or below offPPM, unchanged in between.
type Controller struct {
	actuate  Actuator
	observer FanObserver
	bus      *eventbus.Bus

	onPPM      int
	offPPM     int
	minOn      time.Duration
	minOff     time.Duration
	staleAfter time.Duration

	mu         sync.Mutex
	currentOn  bool
	lastChange time.Time
	last       readings.Snapshot

	now func() time.Time
	log *logger.Logger
}

func New(conf config.VentilationConfig, bus *eventbus.Bus, actuate Actuator, observer FanObserver) *Controller {
	return &Controller{
		actuate:    actuate,
		observer:   observer,
		bus:        bus,
		onPPM:      conf.OnPPM,
		offPPM:     conf.OffPPM,
		minOn:      time.Duration(conf.MinOnSeconds) * time.Second,
		minOff:     time.Duration(conf.MinOffSeconds) * time.Second,
		staleAfter: time.Duration(conf.StaleAfterSeconds) * time.Second,
		now:        time.Now,
		log:        logger.New("Ventilation"),
	}
}

// Open builds the controller for the configured fan pin. It returns nil
// when no fan is configured.
func Open(appConf *config.Config, observer FanObserver) (*Controller, error) {
	conf := appConf.Ventilation
	if conf.FanPin == "" {
		return nil, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(conf.FanPin)
	if pin == nil {
		return nil, fmt.Errorf("fan pin %q not found", conf.FanPin)
	}
	actuate, err := PinActuator(pin, conf.ActiveLow)
	if err != nil {
		return nil, err
	}
	return New(conf, appConf.EventBus, actuate, observer), nil
}

// PinActuator drives a relay on pin, starting with the fan off.
func PinActuator(pin gpio.PinIO, activeLow bool) (Actuator, error) {
	level := func(on bool) gpio.Level {
		return gpio.Level(on != activeLow)
	}
	if err := pin.Out(level(false)); err != nil {
		return nil, fmt.Errorf("fan pin %s: %w", pin, err)
	}
	return func(on bool) error {
		return pin.Out(level(on))
	}, nil
}

// Run follows the readings topic until ctx is canceled, then switches the
// fan off.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info("Running... (on >= %d ppm, off <= %d ppm)", c.onPPM, c.offPPM)

	updates, unsub := c.bus.Subscribe(ctx, events.TopicReadings, true)
	defer unsub()

	// re-evaluate between updates so a stalled monitor still turns the fan off
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.log.Info("Stopped")
			return

		case ev, ok := <-updates:
			if !ok {
				c.shutdown()
				return
			}
			if update, ok := ev.(events.ReadingsUpdate); ok {
				c.mu.Lock()
				c.last = update.Snapshot
				c.mu.Unlock()
				c.evaluate()
			}

		case <-ticker.C:
			c.evaluate()
		}
	}
}

func (c *Controller) isStale(s readings.Snapshot, now time.Time) bool {
	return s.CO2At.IsZero() || now.Sub(s.CO2At) > c.staleAfter
}

// evaluate decides the wanted fan state from the last snapshot.
func (c *Controller) evaluate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	want := c.currentOn
	switch {
	case c.isStale(c.last, now):
		want = false
	case c.last.CO2PPM >= c.onPPM:
		want = true
	case c.last.CO2PPM <= c.offPPM:
		want = false
	}
	c.setFan(want, now, false)
}

// setFan calls the actuator if state changes and respects min ON/OFF
// times unless force is set. Caller holds c.mu.
func (c *Controller) setFan(on bool, now time.Time, force bool) {
	if c.currentOn == on {
		return
	}
	if !force && !c.lastChange.IsZero() {
		elapsed := now.Sub(c.lastChange)
		if c.currentOn && elapsed < c.minOn {
			c.log.Debug("holding fan on, %v left of minimum on time", c.minOn-elapsed)
			return
		}
		if !c.currentOn && elapsed < c.minOff {
			c.log.Debug("holding fan off, %v left of minimum off time", c.minOff-elapsed)
			return
		}
	}

	if err := c.actuate(on); err != nil {
		c.log.Error("actuator error: %v", err)
		return
	}
	c.currentOn = on
	c.lastChange = now
	c.log.Info("fan %s at %d ppm", onOff(on), c.last.CO2PPM)
	if c.observer != nil {
		c.observer.SetFan(on)
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setFan(false, c.now(), true)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		FanOn:      c.currentOn,
		LastChange: c.lastChange,
		CO2PPM:     c.last.CO2PPM,
		Stale:      c.isStale(c.last, c.now()),
		OnPPM:      c.onPPM,
		OffPPM:     c.offPPM,
	}
}

func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.State()); err != nil {
		c.log.Error("failed to encode state: %v", err)
	}
}
