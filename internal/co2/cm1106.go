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
	"airmon/pkg/logger"
	"airmon/pkg/serialport"
	"context"
	"fmt"
	"io"
	"time"
)

const (
	DefaultTimeout = time.Second

	// upper bound on bytes discarded before a request, so a sensor that
	// streams garbage cannot stall the poll loop
	maxDrain = 1024

	idleBackoff = time.Millisecond
)

// CM1106 talks to the sensor over a byte channel. The port's Read must return
// (0, serialport.ErrTimeout) or (0, nil) when nothing is buffered.
type CM1106 struct {
	port           io.ReadWriter
	timeout        time.Duration
	verifyChecksum bool
	log            *logger.Logger

	resp [responseLen]byte
}

func NewCM1106(port io.ReadWriter, timeout time.Duration, verifyChecksum bool) *CM1106 {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CM1106{
		port:           port,
		timeout:        timeout,
		verifyChecksum: verifyChecksum,
		log:            logger.New("CM1106"),
	}
}

// Measure drains stale input, sends the request and waits up to the timeout
// for the 8-byte response.
func (s *CM1106) Measure(ctx context.Context) (int, error) {
	n, err := s.drain()
	if err != nil {
		return 0, fmt.Errorf("drain: %w", err)
	}
	if n > 0 {
		s.log.Debug("discarded %d stale bytes", n)
	}

	if _, err := s.port.Write(requestFrame[:]); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}

	if err := s.readResponse(ctx); err != nil {
		return 0, err
	}
	return decodeResponse(s.resp[:], s.verifyChecksum)
}

func (s *CM1106) drain() (int, error) {
	var scratch [64]byte
	total := 0
	for total < maxDrain {
		n, err := s.port.Read(scratch[:])
		total += n
		if err != nil && !serialport.IsTimeout(err) {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// readResponse fills s.resp or gives up once the timeout has elapsed since
// the clock was sampled. It never reads more than the 8 response bytes.
func (s *CM1106) readResponse(ctx context.Context) error {
	start := time.Now()
	got := 0
	for got < responseLen {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.port.Read(s.resp[got:])
		got += n
		if err != nil && !serialport.IsTimeout(err) {
			return fmt.Errorf("read response: %w", err)
		}
		if got >= responseLen {
			break
		}
		if time.Since(start) > s.timeout {
			return fmt.Errorf("%w: %d of %d bytes after %v", ErrTimeout, got, responseLen, s.timeout)
		}
		if n == 0 && err == nil {
			time.Sleep(idleBackoff)
		}
	}
	return nil
}
