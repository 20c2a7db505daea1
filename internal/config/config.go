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

package config

import (
	"airmon/pkg/eventbus"
	"airmon/pkg/serialport"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	CO2ProtocolCM1106     = "cm1106"
	CO2ProtocolSenseAirS8 = "senseair-s8"
)

type CO2Config struct {
	Protocol       string            `yaml:"protocol"`
	Serial         serialport.Config `yaml:"serial"`
	TimeoutMs      int               `yaml:"timeout_ms"`
	VerifyChecksum bool              `yaml:"verify_checksum"`
	SlaveID        byte              `yaml:"slave_id"` // senseair-s8 only
}

type DHTConfig struct {
	Pin   string `yaml:"pin"`   // periph pin name, e.g. "GPIO2"
	Model string `yaml:"model"` // DHT11 or DHT22
}

type MonitorConfig struct {
	PollIntervalSeconds     int `yaml:"poll_interval_seconds"`
	HistoryHours            int `yaml:"history_hours"`
	SnapshotIntervalMinutes int `yaml:"snapshot_interval_minutes"`
}

type VentilationConfig struct {
	FanPin            string `yaml:"fan_pin"` // empty disables the controller
	ActiveLow         bool   `yaml:"active_low"`
	OnPPM             int    `yaml:"on_ppm"`
	OffPPM            int    `yaml:"off_ppm"`
	MinOnSeconds      int    `yaml:"min_on_seconds"`
	MinOffSeconds     int    `yaml:"min_off_seconds"`
	StaleAfterSeconds int    `yaml:"stale_after_seconds"`
}

type DataLoggerConfig struct {
	Node            string `yaml:"node"`
	IntervalSeconds int    `yaml:"interval_seconds"`

	EmonCMSAddr   string `yaml:"emoncms_addr"`
	EmonCMSApiKey string `yaml:"emoncms_apikey"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	NATSStream  string `yaml:"nats_stream"`
}

type Config struct {
	HTTPAddr    string            `yaml:"http_addr"`
	LogLevel    string            `yaml:"log_level"`
	CO2         CO2Config         `yaml:"co2"`
	DHT         DHTConfig         `yaml:"dht"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Ventilation VentilationConfig `yaml:"ventilation"`
	DataLogger  DataLoggerConfig  `yaml:"datalogger"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `yaml:"-"`
	DataDir  string        `yaml:"-"`
	RootDir  string        `yaml:"-"`
}

// LoadFile reads the YAML config at path and exits on error.
func LoadFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read config: %v", err)
	}
	c, err := Parse(data)
	if err != nil {
		log.Fatalf("%s: %v", path, err)
	}
	return c
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.CO2.Protocol == "" {
		c.CO2.Protocol = CO2ProtocolCM1106
	}
	if c.CO2.Serial.BaudRate == 0 {
		c.CO2.Serial.BaudRate = serialport.DefaultBaudRate
	}
	if c.CO2.TimeoutMs == 0 {
		c.CO2.TimeoutMs = 1000
	}
	if c.DHT.Model == "" {
		c.DHT.Model = "DHT22"
	}
	if c.Monitor.PollIntervalSeconds == 0 {
		c.Monitor.PollIntervalSeconds = 5
	}
	if c.Monitor.HistoryHours == 0 {
		c.Monitor.HistoryHours = 24
	}
	if c.Monitor.SnapshotIntervalMinutes == 0 {
		c.Monitor.SnapshotIntervalMinutes = 15
	}
	if c.Ventilation.OnPPM == 0 {
		c.Ventilation.OnPPM = 1000
	}
	if c.Ventilation.OffPPM == 0 {
		c.Ventilation.OffPPM = 800
	}
	if c.Ventilation.MinOnSeconds == 0 {
		c.Ventilation.MinOnSeconds = 120
	}
	if c.Ventilation.MinOffSeconds == 0 {
		c.Ventilation.MinOffSeconds = 60
	}
	if c.Ventilation.StaleAfterSeconds == 0 {
		c.Ventilation.StaleAfterSeconds = 300
	}
	if c.DataLogger.IntervalSeconds == 0 {
		c.DataLogger.IntervalSeconds = 60
	}
	if c.DataLogger.Node == "" {
		c.DataLogger.Node = "airmon"
	}
	if c.DataLogger.NATSSubject == "" {
		c.DataLogger.NATSSubject = "airmon." + c.DataLogger.Node + ".readings"
	}
	if c.DataLogger.NATSStream == "" {
		c.DataLogger.NATSStream = "AIRMON_READINGS"
	}
}

func (c *Config) validate() error {
	switch c.CO2.Protocol {
	case CO2ProtocolCM1106, CO2ProtocolSenseAirS8:
	default:
		return fmt.Errorf("co2.protocol: unknown protocol %q", c.CO2.Protocol)
	}
	// the DHT cannot be sampled faster than every 2s
	if c.Monitor.PollIntervalSeconds < 2 {
		return fmt.Errorf("monitor.poll_interval_seconds: %d is below the 2s sensor minimum", c.Monitor.PollIntervalSeconds)
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"monitor.history_hours", c.Monitor.HistoryHours},
		{"monitor.snapshot_interval_minutes", c.Monitor.SnapshotIntervalMinutes},
		{"datalogger.interval_seconds", c.DataLogger.IntervalSeconds},
		{"ventilation.min_on_seconds", c.Ventilation.MinOnSeconds},
		{"ventilation.min_off_seconds", c.Ventilation.MinOffSeconds},
		{"ventilation.stale_after_seconds", c.Ventilation.StaleAfterSeconds},
	} {
		if f.value <= 0 {
			return fmt.Errorf("%s: %d must be positive", f.name, f.value)
		}
	}
	if c.Ventilation.OffPPM >= c.Ventilation.OnPPM {
		return fmt.Errorf("ventilation: off_ppm (%d) must be below on_ppm (%d)", c.Ventilation.OffPPM, c.Ventilation.OnPPM)
	}
	return nil
}
