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

package climate

import (
	"airmon/internal/config"
	"airmon/internal/readings"
	"airmon/pkg/dht"
	"airmon/pkg/logger"
	"errors"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Driver is a combined temperature/humidity sensor. Both calls block for as
// long as the driver needs and return NaN when no valid reading is available.
type Driver interface {
	ReadTemperature() float64
	ReadHumidity() float64
}

// Result reports which fields the last Read accepted.
type Result struct {
	TemperatureC       float64
	HumidityPct        float64
	TemperatureUpdated bool
	HumidityUpdated    bool
}

type Reader struct {
	driver Driver
	store  *readings.Store
	log    *logger.Logger
}

func NewReader(driver Driver, store *readings.Store) *Reader {
	return &Reader{
		driver: driver,
		store:  store,
		log:    logger.New("Climate"),
	}
}

// Open initialises the GPIO host and the DHT sensor on the configured pin.
// Call once before the first Read.
func Open(conf config.DHTConfig, store *readings.Store) (*Reader, error) {
	if conf.Pin == "" {
		return nil, errors.New("dht.pin not configured")
	}
	model, err := dht.ParseModel(conf.Model)
	if err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(conf.Pin)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", conf.Pin)
	}
	dev, err := dht.New(pin, model)
	if err != nil {
		return nil, err
	}
	return NewReader(dev, store), nil
}

// Read queries temperature then humidity. Each value is stored only if it is
// a number; a NaN leaves that one field untouched. There is no retry here,
// the next poll cycle is the retry.
func (r *Reader) Read() Result {
	t := r.driver.ReadTemperature()
	h := r.driver.ReadHumidity()
	now := time.Now()

	res := Result{TemperatureC: t, HumidityPct: h}
	if !math.IsNaN(t) {
		r.store.SetTemperature(t, now)
		res.TemperatureUpdated = true
	} else {
		r.log.Debug("temperature read failed")
	}
	if !math.IsNaN(h) {
		r.store.SetHumidity(h, now)
		res.HumidityUpdated = true
	} else {
		r.log.Debug("humidity read failed")
	}
	return res
}
