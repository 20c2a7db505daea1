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
	"math"
	"testing"
	"time"

	"airmon/internal/config"
	"airmon/internal/readings"

	"github.com/matryer/is"
)

type fakeDriver struct {
	temps, hums []float64
	calls       []string
}

func (f *fakeDriver) ReadTemperature() float64 {
	f.calls = append(f.calls, "temperature")
	v := f.temps[0]
	f.temps = f.temps[1:]
	return v
}

func (f *fakeDriver) ReadHumidity() float64 {
	f.calls = append(f.calls, "humidity")
	v := f.hums[0]
	f.hums = f.hums[1:]
	return v
}

func seeded() *readings.Store {
	st := readings.NewStore()
	st.SetTemperature(21.5, time.Now())
	st.SetHumidity(40.0, time.Now())
	return st
}

func TestNaNTemperatureKeepsPrevious(t *testing.T) {
	is := is.New(t)
	st := seeded()
	drv := &fakeDriver{temps: []float64{math.NaN()}, hums: []float64{42.3}}

	res := NewReader(drv, st).Read()

	is.True(!res.TemperatureUpdated)
	is.True(res.HumidityUpdated)
	is.Equal(st.Temperature(), 21.5)
	is.Equal(st.Humidity(), 42.3)
}

func TestNaNHumidityKeepsPrevious(t *testing.T) {
	is := is.New(t)
	st := seeded()
	drv := &fakeDriver{temps: []float64{23.0}, hums: []float64{math.NaN()}}

	NewReader(drv, st).Read()

	is.Equal(st.Temperature(), 23.0)
	is.Equal(st.Humidity(), 40.0)
}

func TestBothValid(t *testing.T) {
	is := is.New(t)
	st := seeded()
	drv := &fakeDriver{temps: []float64{-4.2}, hums: []float64{88.0}}

	res := NewReader(drv, st).Read()

	is.True(res.TemperatureUpdated && res.HumidityUpdated)
	is.Equal(st.Temperature(), -4.2)
	is.Equal(st.Humidity(), 88.0)
	is.Equal(drv.calls, []string{"temperature", "humidity"}) // temperature first, one call each
}

func TestBothInvalid(t *testing.T) {
	is := is.New(t)
	st := seeded()
	before := st.Snapshot()
	drv := &fakeDriver{temps: []float64{math.NaN()}, hums: []float64{math.NaN()}}

	NewReader(drv, st).Read()

	is.Equal(st.Snapshot(), before)
}

func TestOpenRequiresPin(t *testing.T) {
	is := is.New(t)
	_, err := Open(config.DHTConfig{Model: "DHT22"}, readings.NewStore())
	is.True(err != nil)
}
