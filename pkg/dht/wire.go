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

package dht

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

type pulse struct {
	level gpio.Level
	d     time.Duration
}

func (m Model) startLow() time.Duration {
	if m == DHT11 {
		return 18 * time.Millisecond
	}
	return 1100 * time.Microsecond
}

// captureLine sends the start signal and records the length of every level
// the sensor drives until the line goes quiet. Edge interrupts are too slow
// for 27µs pulses, so the pin is sampled in a tight loop.
func (d *Dev) captureLine() ([]pulse, error) {
	if err := d.pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("dht: start signal: %w", err)
	}
	time.Sleep(d.model.startLow())
	if err := d.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("dht: release line: %w", err)
	}

	pulses := make([]pulse, 0, 2*dataBits+4)
	level := d.pin.Read()
	start := time.Now()
	last := start
	for time.Since(start) < captureTimeout && len(pulses) < cap(pulses) {
		l := d.pin.Read()
		if l == level {
			continue
		}
		now := time.Now()
		pulses = append(pulses, pulse{level: level, d: now.Sub(last)})
		level, last = l, now
	}
	if len(pulses) < 2*dataBits {
		return nil, fmt.Errorf("%w: %d edges", ErrNoResponse, len(pulses))
	}
	return pulses, nil
}

// decodePulses turns the trailing 40 low/high pairs into bytes. A bit is one
// when its high phase is longer than the low phase before it, which keeps
// decoding independent of the absolute timing of the host.
func decodePulses(pulses []pulse) ([5]byte, error) {
	var data [5]byte

	// the last data bit ends on a high; drop anything after it
	end := len(pulses)
	for end > 0 && pulses[end-1].level != gpio.High {
		end--
	}
	if end < 2*dataBits {
		return data, fmt.Errorf("%w: %d pulses", ErrNoResponse, end)
	}
	bits := pulses[end-2*dataBits : end]

	for i := range dataBits {
		low, high := bits[2*i], bits[2*i+1]
		if low.level != gpio.Low || high.level != gpio.High {
			return data, fmt.Errorf("%w: framing error at bit %d", ErrNoResponse, i)
		}
		data[i/8] <<= 1
		if high.d > low.d {
			data[i/8] |= 1
		}
	}

	if data[0]+data[1]+data[2]+data[3] != data[4] {
		return data, fmt.Errorf("%w: % x", ErrChecksum, data)
	}
	return data, nil
}

// convert decodes humidity (%RH) and temperature (°C) from a checked frame.
func (m Model) convert(data [5]byte) (humidity, tempC float64, err error) {
	switch m {
	case DHT11:
		humidity = float64(data[0]) + float64(data[1])/10
		tempC = float64(data[2]) + float64(data[3]&0x0f)/10
		if data[3]&0x80 != 0 {
			tempC = -tempC
		}
	default:
		humidity = float64(uint16(data[0])<<8|uint16(data[1])) / 10
		tempC = float64(uint16(data[2]&0x7f)<<8|uint16(data[3])) / 10
		if data[2]&0x80 != 0 {
			tempC = -tempC
		}
	}
	if humidity > 100 {
		return 0, 0, fmt.Errorf("dht: humidity out of range: %.1f", humidity)
	}
	return humidity, tempC, nil
}
