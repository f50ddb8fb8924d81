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

// Package ez80 models the internal flash of the eZ80F92 application
// processor as seen by the updater: a key register guarding the protection
// and divider registers, one protection bit per 16KB erase block, block
// erase with a busy flag, page programming and read-back.
package ez80

import "io"

// Geometry describes a flash device. Blocks are the erase unit, pages the
// program unit.
type Geometry struct {
	Base      uint32
	Size      int
	PageSize  int
	Pages     int
	BlockSize int
	Blocks    int
}

// F92 is the internal flash of the eZ80F92.
var F92 = Geometry{
	Base:      0x000000,
	Size:      0x20000,
	PageSize:  1024,
	Pages:     128,
	BlockSize: 16384,
	Blocks:    8,
}

// PageCount returns how many pages an image of size bytes spans and the
// length of the last one.
func (g Geometry) PageCount(size int) (pages int, lastPage int) {
	pages = size / g.PageSize
	lastPage = g.PageSize
	if rem := size % g.PageSize; rem != 0 {
		pages++
		lastPage = rem
	}
	return pages, lastPage
}

// Register values.
const (
	// ProtectAll sets the protection bit of every block.
	ProtectAll uint8 = 0xFF
	// ProtectNone clears the protection bit of every block.
	ProtectNone uint8 = 0x00
	// DefaultDivider is Ceiling(18MHz * 5.1us), the flash clock divider for
	// an 18.432MHz system clock.
	DefaultDivider uint8 = 0x5F
)

// FlashController is the register-level interface to the flash.
//
// The protection and divider registers only accept a write right after
// UnlockKey, and every accepted write locks the key register again.
type FlashController interface {
	io.ReaderAt

	Geometry() Geometry
	// UnlockKey writes the unlock sequence to the flash key register.
	UnlockKey()
	// SetProtection writes the block protection register.
	SetProtection(mask uint8)
	// SetDivider writes the flash frequency divider register.
	SetDivider(div uint8)
	// StartErase selects block and starts its erase.
	StartErase(block int)
	// Erasing reports the erase-in-progress flag.
	Erasing() bool
	// Program copies data to flash at addr. It cannot fail, only a
	// read-back tells whether the data arrived.
	Program(addr uint32, data []byte)
}

// Interrupts controls the CPU interrupt enable flag.
type Interrupts interface {
	Disable()
	Enable()
}

// Resetter is implemented by targets that can restart the CPU.
type Resetter interface {
	Reset() error
}

// Persister is implemented by targets whose flash contents live in a
// backing store that has to be written explicitly.
type Persister interface {
	Sync() error
}
