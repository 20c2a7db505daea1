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

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"airmon/internal/readings"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSnapshotSkipsUnread(t *testing.T) {
	is := is.New(t)
	m := New()

	m.ObserveSnapshot(readings.Snapshot{})
	is.Equal(testutil.CollectAndCount(m.co2), 0) // no value before the first read
	is.Equal(testutil.CollectAndCount(m.temperature), 0)
	is.Equal(testutil.CollectAndCount(m.humidity), 0)

	m.ObserveSnapshot(readings.Snapshot{CO2PPM: 612, CO2At: time.Now()})

	is.Equal(testutil.ToFloat64(m.co2), 612.0)
	is.Equal(testutil.CollectAndCount(m.temperature), 0)
	is.Equal(testutil.CollectAndCount(m.lastSuccess), 1) // only co2 has been read
}

func TestFreshExporterHasNoReadings(t *testing.T) {
	is := is.New(t)
	m := New()

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	is.True(!strings.Contains(string(body), "\nairmon_co2_ppm "))
	is.True(!strings.Contains(string(body), "\nairmon_temperature_celsius "))
	is.True(!strings.Contains(string(body), "\nairmon_humidity_percent "))
}

func TestObserveRead(t *testing.T) {
	is := is.New(t)
	m := New()

	m.ObserveRead("co2", "ok")
	m.ObserveRead("co2", "timeout")
	m.ObserveRead("co2", "timeout")

	is.Equal(testutil.ToFloat64(m.reads.WithLabelValues("co2", "timeout")), 2.0)
	is.Equal(testutil.ToFloat64(m.reads.WithLabelValues("co2", "ok")), 1.0)
}

func TestHandler(t *testing.T) {
	is := is.New(t)
	m := New()
	m.ObserveSnapshot(readings.Snapshot{TemperatureC: 21.5, TemperatureAt: time.Now()})
	m.SetFan(true)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	is.True(strings.Contains(string(body), "airmon_temperature_celsius 21.5"))
	is.True(strings.Contains(string(body), "airmon_ventilation_fan_on 1"))
}
