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

// Package dht drives DHT11 and DHT22 (AM2302) temperature/humidity sensors
// over a single GPIO line.
//
// The host pulls the line low to request a sample, then the sensor answers
// with an 80µs low/80µs high preamble followed by 40 bits. Each bit is a
// ~50µs low followed by a high whose length encodes the value (~27µs for 0,
// ~70µs for 1). The five decoded bytes are humidity, temperature and a
// checksum.
package dht

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

type Model int

const (
	DHT11 Model = iota
	DHT22
)

func (m Model) String() string {
	if m == DHT11 {
		return "DHT11"
	}
	return "DHT22"
}

// ParseModel accepts "DHT11", "DHT22" and "AM2302".
func ParseModel(s string) (Model, error) {
	switch s {
	case "DHT11", "dht11":
		return DHT11, nil
	case "DHT22", "dht22", "AM2302", "am2302", "":
		return DHT22, nil
	}
	return DHT22, fmt.Errorf("dht: unknown model %q", s)
}

// MinInterval is the sensor's sampling period. Reads closer together than
// this return the cached result.
const MinInterval = 2 * time.Second

const (
	dataBits = 40

	// capture stops after this long even if not all edges were seen
	captureTimeout = 10 * time.Millisecond
)

var (
	ErrNoResponse = errors.New("dht: sensor did not respond")
	ErrChecksum   = errors.New("dht: checksum mismatch")
)

// Dev is a DHT sensor on one pin.
type Dev struct {
	pin   gpio.PinIO
	model Model

	mu       sync.Mutex
	lastRead time.Time
	humidity float64
	tempC    float64
	lastErr  error

	smu      sync.Mutex
	shutdown chan struct{}

	// test hooks
	now     func() time.Time
	capture func() ([]pulse, error)
}

func New(pin gpio.PinIO, model Model) (*Dev, error) {
	if pin == nil {
		return nil, errors.New("dht: nil pin")
	}
	d := &Dev{pin: pin, model: model, now: time.Now}
	d.capture = d.captureLine
	// idle state is high via pull-up
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("dht: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.model, d.pin)
}

// Halt stops a running SenseContinuous.
func (d *Dev) Halt() error {
	d.smu.Lock()
	defer d.smu.Unlock()
	if d.shutdown != nil {
		close(d.shutdown)
		d.shutdown = nil
	}
	return nil
}

// SenseContinuous samples every interval until Halt. Failed samples are
// skipped. The minimum interval is MinInterval.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("dht: interval %v below minimum %v", interval, MinInterval)
	}
	d.smu.Lock()
	defer d.smu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("dht: sense continuous already running")
	}
	stop := make(chan struct{})
	d.shutdown = stop

	ch := make(chan physic.Env, 16)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				var e physic.Env
				if err := d.Sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				default: // reader is behind, drop the sample
				}
			}
		}
	}()
	return ch, nil
}

// read returns the last sample if it is younger than MinInterval, otherwise
// triggers a new one.
func (d *Dev) read() (humidity, tempC float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.lastRead.IsZero() && now.Sub(d.lastRead) < MinInterval {
		return d.humidity, d.tempC, d.lastErr
	}
	d.lastRead = now

	pulses, err := d.capture()
	if err == nil {
		var data [5]byte
		if data, err = decodePulses(pulses); err == nil {
			d.humidity, d.tempC, err = d.model.convert(data)
		}
	}
	d.lastErr = err
	return d.humidity, d.tempC, err
}

// Sense reads temperature and humidity into env.
func (d *Dev) Sense(env *physic.Env) error {
	env.Temperature = 0
	env.Pressure = 0
	env.Humidity = 0

	h, t, err := d.read()
	if err != nil {
		return err
	}
	env.Temperature = physic.ZeroCelsius + physic.Temperature(math.Round(t*1000))*physic.MilliKelvin
	env.Humidity = physic.RelativeHumidity(math.Round(h*10)) * physic.MilliRH
	return nil
}

// ReadTemperature returns °C, or NaN if the sensor could not be read.
func (d *Dev) ReadTemperature() float64 {
	_, t, err := d.read()
	if err != nil {
		return math.NaN()
	}
	return t
}

// ReadHumidity returns %RH, or NaN if the sensor could not be read.
func (d *Dev) ReadHumidity() float64 {
	h, _, err := d.read()
	if err != nil {
		return math.NaN()
	}
	return h
}

// Precision returns the resolution of the device for its measured parameters.
func (d *Dev) Precision(env *physic.Env) {
	env.Pressure = 0
	if d.model == DHT11 {
		env.Temperature = physic.Celsius / 10
		env.Humidity = physic.PercentRH
		return
	}
	env.Temperature = physic.Celsius / 10
	env.Humidity = physic.MilliRH
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
