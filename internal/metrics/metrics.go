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
	"net/http"

	"airmon/internal/readings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the readings and read outcomes to Prometheus. It owns its
// registry so tests and multiple instances do not collide.
type Metrics struct {
	registry *prometheus.Registry

	// label-less vecs: the series only appears once its first value is set
	co2         *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	reads       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	fanOn       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		co2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airmon_co2_ppm",
			Help: "Air Carbon Dioxide level (units: ppm)",
		}, nil),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airmon_temperature_celsius",
			Help: "Air Temperature (units: degrees Celsius)",
		}, nil),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airmon_humidity_percent",
			Help: "Humidity (units: % of relative Humidity)",
		}, nil),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airmon_sensor_reads_total",
			Help: "Sensor read attempts by outcome",
		}, []string{"sensor", "status"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airmon_sensor_last_success_timestamp_seconds",
			Help: "Unix time of the last accepted reading",
		}, []string{"sensor"}),
		fanOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airmon_ventilation_fan_on",
			Help: "1 while the ventilation fan relay is on",
		}),
	}

	m.registry.MustRegister(
		m.co2, m.temperature, m.humidity, m.reads, m.lastSuccess, m.fanOn,
		collectors.NewGoCollector(),
		collectors.NewBuildInfoCollector(),
	)
	return m
}

// ObserveRead counts one read attempt of sensor ("co2", "temperature",
// "humidity") with the given status label.
func (m *Metrics) ObserveRead(sensor, status string) {
	m.reads.WithLabelValues(sensor, status).Inc()
}

// ObserveSnapshot updates the gauges from the store. Values that were never
// read are not exported.
func (m *Metrics) ObserveSnapshot(s readings.Snapshot) {
	if !s.CO2At.IsZero() {
		m.co2.WithLabelValues().Set(float64(s.CO2PPM))
		m.lastSuccess.WithLabelValues("co2").Set(float64(s.CO2At.Unix()))
	}
	if !s.TemperatureAt.IsZero() {
		m.temperature.WithLabelValues().Set(s.TemperatureC)
		m.lastSuccess.WithLabelValues("temperature").Set(float64(s.TemperatureAt.Unix()))
	}
	if !s.HumidityAt.IsZero() {
		m.humidity.WithLabelValues().Set(s.HumidityPct)
		m.lastSuccess.WithLabelValues("humidity").Set(float64(s.HumidityAt.Unix()))
	}
}

func (m *Metrics) SetFan(on bool) {
	if on {
		m.fanOn.Set(1)
	} else {
		m.fanOn.Set(0)
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}).ServeHTTP(w, r)
}
