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

package flasher

import (
	"context"
	"fmt"
	"io"

	"github.com/arduino/agon-fwuploader/checksum"
	"github.com/arduino/agon-fwuploader/ez80"
	"github.com/arduino/agon-fwuploader/firmware"
	"github.com/sirupsen/logrus"
)

// MaxAttempts bounds the erase, program and verify cycles of one update.
const MaxAttempts = 3

// State is a step of the MOS flash programming sequence.
type State int

const (
	Idle State = iota
	InterruptsDisabled
	ProtectionDisabled
	Erasing
	Programming
	ProtectionRestored
	Verifying
	Success
	RetryOrFail
)

func (s State) String() string {
	return [...]string{
		"idle",
		"interrupts disabled",
		"protection disabled",
		"erasing",
		"programming",
		"protection restored",
		"verifying",
		"success",
		"retry or fail",
	}[s]
}

// MosFlasher programs the eZ80 internal flash.
type MosFlasher struct {
	flash            ez80.FlashController
	irq              ez80.Interrupts
	geo              ez80.Geometry
	region           []byte
	blockSize        int
	divider          uint8
	eraseWait        func()
	stateHook        func(attempt int, s State)
	progressCallback func(int)
}

// MosOption configures a MosFlasher.
type MosOption func(*MosFlasher)

// WithStagingBlockSize sets the chunk size used to read the image.
func WithStagingBlockSize(size int) MosOption {
	return func(f *MosFlasher) {
		if size > 0 {
			f.blockSize = size
		}
	}
}

// WithEraseWait sets the function called between polls of the erase busy
// flag.
func WithEraseWait(wait func()) MosOption {
	return func(f *MosFlasher) {
		f.eraseWait = wait
	}
}

// WithStateHook sets a function called on every state change.
func WithStateHook(hook func(attempt int, s State)) MosOption {
	return func(f *MosFlasher) {
		f.stateHook = hook
	}
}

// NewMosFlasher creates a MosFlasher. The staging region is sized to the
// whole flash.
func NewMosFlasher(flash ez80.FlashController, irq ez80.Interrupts, opts ...MosOption) *MosFlasher {
	geo := flash.Geometry()
	f := &MosFlasher{
		flash:     flash,
		irq:       irq,
		geo:       geo,
		region:    make([]byte, geo.Size),
		blockSize: firmware.DefaultBlockSize,
		divider:   ez80.DefaultDivider,
		eraseWait: func() {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetProgressCallback sets the function receiving the page programming
// progress in percent.
func (f *MosFlasher) SetProgressCallback(callback func(progress int)) {
	f.progressCallback = callback
}

func (f *MosFlasher) setState(attempt int, s State) {
	logrus.Debugf("MOS flash attempt %d: %s", attempt, s)
	if f.stateHook != nil {
		f.stateHook(attempt, s)
	}
}

// FlashFirmware stages img in RAM, checks it against img.Checksum and
// programs it. ctx is only checked before the flash is touched: once the
// first attempt starts the sequence runs to completion.
func (f *MosFlasher) FlashFirmware(ctx context.Context, img *firmware.Image, flasherOut io.Writer) (*FlashResult, error) {
	logrus.Infof("Flashing MOS firmware %s", img.Name)
	fmt.Fprintln(flasherOut, "Programming MOS firmware to ez80 flash...")
	fmt.Fprint(flasherOut, "Reading MOS firmware")
	n, crc, err := firmware.Stage(img, f.region, f.blockSize, func(int) {
		fmt.Fprint(flasherOut, ".")
	})
	fmt.Fprintln(flasherOut)
	if err != nil {
		return nil, err
	}
	if crc != img.Checksum {
		err := &StagingChecksumError{Name: img.Name, Expected: img.Checksum, Actual: crc}
		logrus.Error(err)
		fmt.Fprintln(flasherOut, "Error reading file to memory")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := newResult(img)
	attempts, err := f.Program(f.region[:n], crc, flasherOut)
	res.Attempts = attempts
	res.Success = err == nil
	return res, err
}

// Program writes image to flash and verifies it against expected, erasing
// and programming again up to MaxAttempts times. It returns one entry per
// attempt made.
func (f *MosFlasher) Program(image []byte, expected uint32, flasherOut io.Writer) ([]*Attempt, error) {
	if len(image) > f.geo.Size {
		err := fmt.Errorf("image of %d bytes does not fit %d bytes of flash", len(image), f.geo.Size)
		logrus.Error(err)
		return nil, err
	}

	var attempts []*Attempt
	var last *VerifyMismatchError
	for n := 1; n <= MaxAttempts; n++ {
		if n > 1 {
			fmt.Fprintf(flasherOut, "Retry attempt #%d\n", n-1)
		}
		observed := f.attempt(n, image, flasherOut)
		a := &Attempt{Number: n, Expected: expected, Observed: observed, Success: observed == expected}
		attempts = append(attempts, a)
		if a.Success {
			fmt.Fprintln(flasherOut, "OK")
			f.setState(n, Success)
			logrus.Infof("MOS flashed and verified in %d attempt(s)", n)
			return attempts, nil
		}
		fmt.Fprintln(flasherOut, "ERROR")
		last = &VerifyMismatchError{Attempt: n, Expected: expected, Actual: observed}
		logrus.Warn(last)
		f.setState(n, RetryOrFail)
	}
	err := &RetriesExhaustedError{Attempts: MaxAttempts, Last: last}
	logrus.Error(err)
	return attempts, err
}

// attempt runs one full cycle with interrupts disabled and returns the
// checksum read back from flash. Nothing else may touch flash between
// unlock and re-lock, and the protection is restored on every way out.
func (f *MosFlasher) attempt(n int, image []byte, flasherOut io.Writer) uint32 {
	f.irq.Disable()
	defer f.irq.Enable()
	f.setState(n, InterruptsDisabled)

	func() {
		f.unprotect()
		f.setState(n, ProtectionDisabled)
		defer func() {
			f.protect()
			f.setState(n, ProtectionRestored)
		}()

		fmt.Fprint(flasherOut, "Erasing flash... ")
		f.setState(n, Erasing)
		f.eraseAll()
		fmt.Fprintln(flasherOut)

		f.setState(n, Programming)
		f.programPages(image, flasherOut)
	}()

	fmt.Fprint(flasherOut, "\nChecking CRC... ")
	f.setState(n, Verifying)
	observed, err := f.readBackChecksum(len(image))
	if err != nil {
		// a failed read-back counts as a mismatch
		logrus.Error(err)
	}
	return observed
}

func (f *MosFlasher) unprotect() {
	f.flash.UnlockKey()
	f.flash.SetProtection(ez80.ProtectNone)
	// the key register locks again after every protected write
	f.flash.UnlockKey()
	f.flash.SetDivider(f.divider)
}

func (f *MosFlasher) protect() {
	f.flash.UnlockKey()
	f.flash.SetProtection(ez80.ProtectAll)
}

// eraseAll erases every block, even those that may already be blank.
func (f *MosFlasher) eraseAll() {
	for block := 0; block < f.geo.Blocks; block++ {
		f.flash.StartErase(block)
		for f.flash.Erasing() {
			f.eraseWait()
		}
	}
}

func (f *MosFlasher) programPages(image []byte, flasherOut io.Writer) {
	pages, lastPage := f.geo.PageCount(len(image))
	for page := 0; page < pages; page++ {
		fmt.Fprintf(flasherOut, "\rWriting flash page %03d/%03d", page+1, pages)
		length := f.geo.PageSize
		if page == pages-1 {
			length = lastPage
		}
		offset := page * f.geo.PageSize
		f.flash.Program(f.geo.Base+uint32(offset), image[offset:offset+length])
		if f.progressCallback != nil {
			f.progressCallback((page + 1) * 100 / pages)
		}
	}
}

func (f *MosFlasher) readBackChecksum(size int) (uint32, error) {
	section := io.NewSectionReader(f.flash, int64(f.geo.Base), int64(size))
	crc, n, err := checksum.FromReader(section, f.blockSize)
	if err != nil {
		return crc, err
	}
	if n != int64(size) {
		return crc, fmt.Errorf("read back %d of %d bytes", n, size)
	}
	return crc, nil
}
