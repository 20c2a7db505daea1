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

package serialport

import (
	"airmon/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/grid-x/serial"
)

// Config describes a UART. Zero fields fall back to 9600 8N1.
type Config struct {
	Address  string `yaml:"address"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"` // "N", "E" or "O"

	// PollTimeout bounds a single Read. It is kept short so that callers
	// can layer their own deadline on top of repeated reads.
	PollTimeout time.Duration `yaml:"-"`
}

const (
	DefaultBaudRate    = 9600
	DefaultPollTimeout = 50 * time.Millisecond
)

// ErrTimeout is returned by Read when no byte arrived within PollTimeout.
var ErrTimeout = serial.ErrTimeout

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	return c
}

func (c Config) serialConfig() *serial.Config {
	return &serial.Config{
		Address:  c.Address,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
		Timeout:  c.PollTimeout,
	}
}

// Open opens the port once.
func Open(conf Config) (io.ReadWriteCloser, error) {
	conf = conf.withDefaults()
	if conf.Address == "" {
		return nil, errors.New("serial port address not configured")
	}
	p, err := serial.Open(conf.serialConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.Address, err)
	}
	return p, nil
}

// OpenWithRetry keeps trying to open the port with exponential backoff (max
// 30s) until it succeeds or ctx ends. USB adapters often show up late at boot.
func OpenWithRetry(ctx context.Context, conf Config) (io.ReadWriteCloser, error) {
	log := logger.New("SerialPort")
	backoff := time.Second
	for {
		p, err := Open(conf)
		if err == nil {
			log.Info("opened %s at %d baud", conf.Address, conf.withDefaults().BaudRate)
			return p, nil
		}
		log.Error("%v (retrying in %v)", err, backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// IsTimeout reports whether err only means "nothing to read yet".
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
