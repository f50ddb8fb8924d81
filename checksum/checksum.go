/*
	agon-fwuploader
	Copyright (c) 2023 Arduino LLC.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package checksum computes the standard reflected CRC-32 (IEEE 802.3,
// polynomial 0xEDB88320, initial value and final XOR 0xFFFFFFFF) over a
// stream of byte chunks. Values match the ones produced by crc32 tooling on
// the build host, so a firmware file can be checked against its published
// checksum.
package checksum

import (
	"hash/crc32"
	"io"
)

const (
	initial  = 0xFFFFFFFF
	finalXor = 0xFFFFFFFF
)

// Accumulator holds the running CRC-32 register. The zero value is not a
// valid accumulator, use Init.
type Accumulator struct {
	reg uint32
}

// Init returns a fresh accumulator.
func Init() Accumulator {
	return Accumulator{reg: initial}
}

// Feed returns the accumulator updated with data. Feeding a zero-length
// chunk returns the accumulator unchanged.
func (a Accumulator) Feed(data []byte) Accumulator {
	// crc32.Update works on finalized values, so the register is
	// complemented on the way in and out.
	return Accumulator{reg: ^crc32.Update(^a.reg, crc32.IEEETable, data)}
}

// Finalize returns the checksum of everything fed so far.
func (a Accumulator) Finalize() uint32 {
	return a.reg ^ finalXor
}

// Write feeds p into the accumulator, so it can be used as an io.Writer.
func (a *Accumulator) Write(p []byte) (int, error) {
	*a = a.Feed(p)
	return len(p), nil
}

// Of returns the checksum of data.
func Of(data []byte) uint32 {
	return Init().Feed(data).Finalize()
}

// FromReader reads r until EOF in chunks of at most blockSize bytes and
// returns the checksum and the number of bytes read.
func FromReader(r io.Reader, blockSize int) (uint32, int64, error) {
	acc := Init()
	buf := make([]byte, blockSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			acc = acc.Feed(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			return acc.Finalize(), total, nil
		}
		if err != nil {
			return 0, total, err
		}
	}
}
