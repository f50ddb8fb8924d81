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

package ez80

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
)

// Stats counts what happened to an Emulator.
type Stats struct {
	ProtectionCleared  int
	ProtectionRestored int
	BlockErases        int
	PagePrograms       int
	InterruptsDisabled int
	InterruptsEnabled  int
	IgnoredWrites      int
}

// Emulator is an in-memory FlashController and Interrupts implementation.
// It follows the hardware closely enough to catch ordering mistakes:
// writes to locked registers are dropped, erase and program of protected
// blocks are dropped, and programming can only clear bits.
//
// When backed by a ROM image file the flash contents are loaded from it and
// written back on Sync.
type Emulator struct {
	// EraseLatency is how many times Erasing reports busy after an erase
	// was started.
	EraseLatency int
	// Faulty, if set, is asked once per erase cycle (counted from 1) whether
	// the programming done in that cycle gets corrupted.
	Faulty func(cycle int) bool
	// Trace receives one line per register access when not nil.
	Trace io.Writer

	geo        Geometry
	mem        []byte
	keyOpen    bool
	protection uint8
	divider    uint8
	busy       int
	irqEnabled bool
	cycle      int
	corrupt    bool
	romImage   *paths.Path
	stats      Stats
}

// NewEmulator returns an emulated flash of geometry geo. Flash starts erased,
// protected and with interrupts enabled.
func NewEmulator(geo Geometry) *Emulator {
	return &Emulator{
		geo:        geo,
		mem:        bytes.Repeat([]byte{0xFF}, geo.Size),
		protection: ProtectAll,
		irqEnabled: true,
	}
}

// OpenEmulator returns an emulated flash backed by the ROM image at path.
// A missing file gives an erased flash, the file is created on Sync.
func OpenEmulator(geo Geometry, path *paths.Path) (*Emulator, error) {
	e := NewEmulator(geo)
	e.romImage = path
	if !path.Exist() {
		logrus.Infof("ROM image %s not found, starting from erased flash", path)
		return e, nil
	}
	data, err := path.ReadFile()
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	if len(data) > geo.Size {
		err = fmt.Errorf("ROM image %s is %d bytes, flash is %d", path, len(data), geo.Size)
		logrus.Error(err)
		return nil, err
	}
	copy(e.mem, data)
	logrus.Debugf("loaded ROM image %s (%d bytes)", path, len(data))
	return e, nil
}

func (e *Emulator) trace(format string, args ...interface{}) {
	if e.Trace != nil {
		fmt.Fprintf(e.Trace, format+"\n", args...)
	}
}

// Geometry implements FlashController.
func (e *Emulator) Geometry() Geometry {
	return e.geo
}

// UnlockKey implements FlashController.
func (e *Emulator) UnlockKey() {
	e.trace("key")
	e.keyOpen = true
}

// SetProtection implements FlashController.
func (e *Emulator) SetProtection(mask uint8) {
	if !e.keyOpen {
		e.trace("prot %02X ignored", mask)
		e.stats.IgnoredWrites++
		return
	}
	e.keyOpen = false
	e.protection = mask
	e.trace("prot %02X", mask)
	switch mask {
	case ProtectNone:
		e.stats.ProtectionCleared++
	case ProtectAll:
		e.stats.ProtectionRestored++
	}
}

// SetDivider implements FlashController.
func (e *Emulator) SetDivider(div uint8) {
	if !e.keyOpen {
		e.trace("fdiv %02X ignored", div)
		e.stats.IgnoredWrites++
		return
	}
	e.keyOpen = false
	e.divider = div
	e.trace("fdiv %02X", div)
}

func (e *Emulator) protected(block int) bool {
	return e.protection&(1<<uint(block)) != 0
}

// StartErase implements FlashController.
func (e *Emulator) StartErase(block int) {
	if block < 0 || block >= e.geo.Blocks || e.protected(block) {
		e.trace("erase %d ignored", block)
		e.stats.IgnoredWrites++
		return
	}
	if block == 0 {
		e.cycle++
		e.corrupt = e.Faulty != nil && e.Faulty(e.cycle)
	}
	start := block * e.geo.BlockSize
	for i := start; i < start+e.geo.BlockSize; i++ {
		e.mem[i] = 0xFF
	}
	e.busy = e.EraseLatency
	e.stats.BlockErases++
	e.trace("erase %d", block)
}

// Erasing implements FlashController.
func (e *Emulator) Erasing() bool {
	if e.busy > 0 {
		e.busy--
		return true
	}
	return false
}

// Program implements FlashController.
func (e *Emulator) Program(addr uint32, data []byte) {
	e.trace("program %06X %d", addr, len(data))
	e.stats.PagePrograms++
	for i, b := range data {
		a := int(addr-e.geo.Base) + i
		if a < 0 || a >= len(e.mem) || e.protected(a/e.geo.BlockSize) {
			e.stats.IgnoredWrites++
			continue
		}
		if e.corrupt {
			b = ^b
			e.corrupt = false
		}
		e.mem[a] &= b
	}
}

// ReadAt implements io.ReaderAt over the flash address space.
func (e *Emulator) ReadAt(p []byte, off int64) (int, error) {
	off -= int64(e.geo.Base)
	if off < 0 || off >= int64(len(e.mem)) {
		return 0, io.EOF
	}
	n := copy(p, e.mem[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Disable implements Interrupts.
func (e *Emulator) Disable() {
	e.trace("di")
	e.irqEnabled = false
	e.stats.InterruptsDisabled++
}

// Enable implements Interrupts.
func (e *Emulator) Enable() {
	e.trace("ei")
	e.irqEnabled = true
	e.stats.InterruptsEnabled++
}

// InterruptsEnabled reports the interrupt enable flag.
func (e *Emulator) InterruptsEnabled() bool {
	return e.irqEnabled
}

// Protection returns the block protection register.
func (e *Emulator) Protection() uint8 {
	return e.protection
}

// Divider returns the flash frequency divider register.
func (e *Emulator) Divider() uint8 {
	return e.divider
}

// Stats returns the access counters.
func (e *Emulator) Stats() Stats {
	return e.stats
}

// Contents returns a copy of the whole flash.
func (e *Emulator) Contents() []byte {
	return append([]byte(nil), e.mem...)
}

// Sync writes the flash contents to the ROM image file, if any.
func (e *Emulator) Sync() error {
	if e.romImage == nil {
		return nil
	}
	if err := e.romImage.WriteFile(e.mem); err != nil {
		logrus.Error(err)
		return err
	}
	logrus.Infof("ROM image written to %s", e.romImage)
	return nil
}

// Reset restarts the emulated CPU. The flash contents are kept.
func (e *Emulator) Reset() error {
	e.keyOpen = false
	e.irqEnabled = true
	logrus.Info("eZ80 reset")
	return nil
}
