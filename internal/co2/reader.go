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

package co2

import (
	"airmon/internal/config"
	"airmon/internal/readings"
	"airmon/pkg/logger"
	"airmon/pkg/serialport"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Sensor performs one request/response exchange and returns the
// concentration in ppm.
type Sensor interface {
	Measure(ctx context.Context) (int, error)
}

type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusBadHeader
	StatusBadChecksum
	StatusIOError
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusBadHeader:
		return "bad_header"
	case StatusBadChecksum:
		return "bad_checksum"
	case StatusIOError:
		return "io_error"
	case StatusCanceled:
		return "canceled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result describes one Read. Only StatusOK changed the store.
type Result struct {
	PPM    int
	Status Status
	Err    error
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrBadHeader):
		return StatusBadHeader
	case errors.Is(err, ErrBadChecksum):
		return StatusBadChecksum
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusIOError
	}
}

// reopenAfter consecutive I/O errors make the Reader reopen the port, so a
// USB adapter that was unplugged and plugged back in is picked up again.
const reopenAfter = 3

// reopenFunc opens a fresh sensor handle.
type reopenFunc func(ctx context.Context) (Sensor, io.Closer, error)

// Reader owns the sensor handle and writes accepted readings to the store.
type Reader struct {
	sensor Sensor
	store  *readings.Store
	closer io.Closer
	log    *logger.Logger

	reopen   reopenFunc
	ioErrors int
}

func NewReader(sensor Sensor, store *readings.Store) *Reader {
	return &Reader{
		sensor: sensor,
		store:  store,
		log:    logger.New("CO2"),
	}
}

// Open sets up the configured sensor. Call once before the first Read.
func Open(ctx context.Context, conf config.CO2Config, store *readings.Store) (*Reader, error) {
	timeout := time.Duration(conf.TimeoutMs) * time.Millisecond

	var reopen reopenFunc
	switch conf.Protocol {
	case config.CO2ProtocolCM1106, "":
		reopen = func(context.Context) (Sensor, io.Closer, error) {
			port, err := serialport.Open(conf.Serial)
			if err != nil {
				return nil, nil, err
			}
			return NewCM1106(port, timeout, conf.VerifyChecksum), port, nil
		}
		port, err := serialport.OpenWithRetry(ctx, conf.Serial)
		if err != nil {
			return nil, err
		}
		r := NewReader(NewCM1106(port, timeout, conf.VerifyChecksum), store)
		r.closer, r.reopen = port, reopen
		return r, nil

	case config.CO2ProtocolSenseAirS8:
		reopen = func(ctx context.Context) (Sensor, io.Closer, error) {
			s8, handler, err := openSenseAirS8(ctx, conf.Serial, conf.SlaveID, timeout)
			if err != nil {
				return nil, nil, err
			}
			return s8, handler, nil
		}
		s8, handler, err := reopen(ctx)
		if err != nil {
			return nil, err
		}
		r := NewReader(s8, store)
		r.closer, r.reopen = handler, reopen
		return r, nil
	}
	return nil, fmt.Errorf("unknown co2 protocol %q", conf.Protocol)
}

// Read performs one exchange. On any failure the stored concentration is
// left as it was; failures are only visible in the Result and debug log.
func (r *Reader) Read(ctx context.Context) Result {
	ppm, err := r.sensor.Measure(ctx)
	res := Result{PPM: ppm, Status: statusOf(err), Err: err}
	if err != nil {
		r.log.Debug("read skipped (%s): %v", res.Status, err)
		if res.Status == StatusIOError {
			r.ioErrors++
			if r.ioErrors >= reopenAfter {
				r.tryReopen(ctx)
			}
		} else {
			r.ioErrors = 0
		}
		return res
	}
	r.ioErrors = 0
	r.store.SetCO2(ppm, time.Now())
	return res
}

// tryReopen makes one attempt to replace the sensor handle. On failure the
// old handle stays and the next failing Read tries again.
func (r *Reader) tryReopen(ctx context.Context) {
	if r.reopen == nil {
		return
	}
	r.log.Warn("%d consecutive I/O errors, reopening sensor", r.ioErrors)
	sensor, closer, err := r.reopen(ctx)
	if err != nil {
		r.log.Error("reopen failed: %v", err)
		return
	}
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			r.log.Debug("closing old handle: %v", err)
		}
	}
	r.sensor, r.closer = sensor, closer
	r.ioErrors = 0
	r.log.Info("sensor reopened")
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
