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
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestSettersAreIndependent(t *testing.T) {
	is := is.New(t)
	st := NewStore()
	now := time.Now()

	st.SetTemperature(21.5, now)
	st.SetHumidity(40.0, now)
	st.SetHumidity(42.3, now.Add(time.Second))

	s := st.Snapshot()
	is.Equal(s.TemperatureC, 21.5)
	is.Equal(s.HumidityPct, 42.3)
	is.Equal(s.CO2PPM, 0)
	is.True(s.CO2At.IsZero()) // never read
	is.Equal(s.TemperatureAt, now)
}

func TestAge(t *testing.T) {
	is := is.New(t)
	now := time.Now()

	s := Snapshot{CO2At: now.Add(-3 * time.Second), TemperatureAt: now}
	co2, temp, hum := s.Age(now)
	is.Equal(co2, 3*time.Second)
	is.Equal(temp, time.Duration(0))
	is.Equal(hum, time.Duration(-1))
}

func TestConcurrentReaders(t *testing.T) {
	is := is.New(t)
	st := NewStore()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 100 {
				st.SetCO2(400+i*100+j, time.Now())
				_ = st.Snapshot()
			}
		})
	}
	wg.Wait()
	is.True(st.CO2() >= 400)
}
