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
	"encoding/binary"
	"errors"
	"fmt"
)

// Cubic CM1106 style "read measured result" exchange.
const (
	requestLen     = 4
	responseLen    = 8
	responseHeader = 0x16
)

var requestFrame = [requestLen]byte{0x11, 0x01, 0x01, 0xED}

var (
	ErrTimeout     = errors.New("co2: no complete response before deadline")
	ErrBadHeader   = errors.New("co2: unexpected response header")
	ErrBadChecksum = errors.New("co2: response checksum mismatch")
)

// frameSum adds every byte mod 256. A well formed frame, trailing checksum
// included, sums to zero.
func frameSum(b []byte) byte {
	var s byte
	for _, c := range b {
		s += c
	}
	return s
}

// decodeResponse validates the header (and optionally the checksum) and
// returns the big-endian concentration held in bytes 3 and 4.
func decodeResponse(b []byte, verifyChecksum bool) (int, error) {
	if len(b) < responseLen {
		return 0, fmt.Errorf("%w: short frame (%d bytes)", ErrTimeout, len(b))
	}
	if b[0] != responseHeader {
		return 0, fmt.Errorf("%w: 0x%02x", ErrBadHeader, b[0])
	}
	if verifyChecksum && frameSum(b[:responseLen]) != 0 {
		return 0, fmt.Errorf("%w: % x", ErrBadChecksum, b[:responseLen])
	}
	return int(binary.BigEndian.Uint16(b[3:5])), nil
}
