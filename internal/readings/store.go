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

package readings

import (
	"sync"
	"time"
)

// Snapshot is a copy of the latest accepted readings. A zero timestamp means
// the quantity has never been read successfully and its value is the zero
// value.
type Snapshot struct {
	CO2PPM        int       `json:"co2_ppm"`
	TemperatureC  float64   `json:"temperature_c"`
	HumidityPct   float64   `json:"humidity_pct"`
	CO2At         time.Time `json:"co2_at"`
	TemperatureAt time.Time `json:"temperature_at"`
	HumidityAt    time.Time `json:"humidity_at"`
}

// Store holds the latest readings. Each setter replaces one value and its
// timestamp together; nothing else ever writes them, so a reader sees either
// the previous reading or the new one.
type Store struct {
	mu sync.RWMutex
	s  Snapshot
}

func NewStore() *Store {
	return &Store{}
}

func (st *Store) SetCO2(ppm int, at time.Time) {
	st.mu.Lock()
	st.s.CO2PPM, st.s.CO2At = ppm, at
	st.mu.Unlock()
}

func (st *Store) SetTemperature(c float64, at time.Time) {
	st.mu.Lock()
	st.s.TemperatureC, st.s.TemperatureAt = c, at
	st.mu.Unlock()
}

func (st *Store) SetHumidity(pct float64, at time.Time) {
	st.mu.Lock()
	st.s.HumidityPct, st.s.HumidityAt = pct, at
	st.mu.Unlock()
}

func (st *Store) CO2() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.CO2PPM
}

func (st *Store) Temperature() float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.TemperatureC
}

func (st *Store) Humidity() float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.HumidityPct
}

func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Age returns how long ago each quantity was last updated, relative to now.
// Never-read quantities report -1.
func (s Snapshot) Age(now time.Time) (co2, temperature, humidity time.Duration) {
	age := func(at time.Time) time.Duration {
		if at.IsZero() {
			return -1
		}
		return now.Sub(at)
	}
	return age(s.CO2At), age(s.TemperatureAt), age(s.HumidityAt)
}
