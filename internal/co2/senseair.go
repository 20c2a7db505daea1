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
	"airmon/pkg/serialport"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/grid-x/modbus"
)

const (
	// SenseAir S8 answers on the "any sensor" address.
	DefaultS8SlaveID byte = 0xFE

	s8CO2Register uint16 = 0x0003
)

type inputRegisterReader interface {
	ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]byte, error)
}

// SenseAirS8 reads the CO2 input register over Modbus RTU.
type SenseAirS8 struct {
	client  inputRegisterReader
	timeout time.Duration
}

func NewSenseAirS8(client inputRegisterReader, timeout time.Duration) *SenseAirS8 {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SenseAirS8{client: client, timeout: timeout}
}

func (s *SenseAirS8) Measure(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.ReadInputRegisters(ctx, s8CO2Register, 1)
	if err != nil {
		if serialport.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return 0, fmt.Errorf("read input register: %w", err)
	}
	if len(raw) < 2 {
		return 0, fmt.Errorf("%w: %d byte register payload", ErrBadHeader, len(raw))
	}
	return int(binary.BigEndian.Uint16(raw)), nil
}

// openSenseAirS8 connects a Modbus RTU handler on the configured port.
func openSenseAirS8(ctx context.Context, port serialport.Config, slaveID byte, timeout time.Duration) (*SenseAirS8, *modbus.RTUClientHandler, error) {
	if port.Address == "" {
		return nil, nil, errors.New("senseair: serial port address not configured")
	}
	if port.BaudRate == 0 {
		port.BaudRate = serialport.DefaultBaudRate
	}
	if slaveID == 0 {
		slaveID = DefaultS8SlaveID
	}

	handler := modbus.NewRTUClientHandler(port.Address)
	handler.BaudRate = port.BaudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveID = slaveID
	handler.Timeout = timeout

	if err := handler.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("senseair connect %s: %w", port.Address, err)
	}
	return NewSenseAirS8(modbus.NewClient(handler), timeout), handler, nil
}
