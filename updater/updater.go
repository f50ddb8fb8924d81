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

// Package updater runs an update session: every selected image is checked
// before anything is written, then the VDP is updated and the MOS flash
// last, since a MOS update ends with a reset.
package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arduino/agon-fwuploader/ez80"
	"github.com/arduino/agon-fwuploader/firmware"
	"github.com/arduino/agon-fwuploader/flasher"
	"github.com/arduino/agon-fwuploader/vdp"
	"github.com/sirupsen/logrus"
)

// Prompter asks the operator.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(question string) (bool, error)
	// AwaitEscape shows message and waits for the ESC key.
	AwaitEscape(message string) error
}

// Session holds the collaborators of one update.
type Session struct {
	Mos flasher.Flasher
	Vdp *flasher.VdpFlasher
	// Console receives the batch mode beeps, it may be nil.
	Console vdp.Console
	// Resetter restarts the CPU after a MOS update, it may be nil.
	Resetter ez80.Resetter
	// Persister stores the flash contents once the MOS attempts are over,
	// it may be nil.
	Persister ez80.Persister
	Prompter  Prompter
	Out       io.Writer

	// Force skips the confirmation and the ESC prompt.
	Force bool
	// Batch beeps at every milestone and asks for a manual reset instead
	// of resetting.
	Batch     bool
	BlockSize int
	Sleep     func(time.Duration)
}

func (s *Session) out() io.Writer {
	if s.Out == nil {
		return io.Discard
	}
	return s.Out
}

func (s *Session) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Run updates the VDP with vdpImg and the MOS flash with mosImg. Either may
// be nil but not both.
func (s *Session) Run(ctx context.Context, mosImg, vdpImg *firmware.Image) (*Result, error) {
	res := &Result{}
	var images []*firmware.Image
	if mosImg != nil {
		images = append(images, mosImg)
	}
	if vdpImg != nil {
		images = append(images, vdpImg)
	}
	if len(images) == 0 {
		return res, errors.New("no firmware selected")
	}

	if err := Validate(images...); err != nil {
		return res, err
	}
	if err := s.checksums(images, res); err != nil {
		return res, err
	}
	if !s.Force {
		for _, c := range res.Checksums {
			fmt.Fprintf(s.out(), "%s CRC %s\n", c.Target, c.CRC)
		}
		fmt.Fprintln(s.out())
		ok, err := s.Prompter.Confirm("Flash firmware (y/n)?")
		if err != nil {
			return res, err
		}
		if !ok {
			res.Aborted = true
			return res, ErrUserAbort
		}
	}
	if s.Batch {
		s.beep(1)
	}

	var vdpErr error
	if vdpImg != nil {
		if err := s.updateVdp(ctx, vdpImg, res, mosImg != nil); err != nil {
			var unlock *flasher.UnlockFailedError
			if mosImg == nil || !errors.As(err, &unlock) {
				return res, err
			}
			// the VDP still runs its old firmware, MOS can go on
			vdpErr = err
		}
	}

	if mosImg != nil {
		if err := s.updateMos(ctx, mosImg, res); err != nil {
			return res, errors.Join(vdpErr, err)
		}
	}
	return res, vdpErr
}

// Validate checks every image against its kind and size limit. All
// failures are reported together.
func Validate(images ...*firmware.Image) error {
	var errs []error
	for _, img := range images {
		if err := firmware.Validate(img); err != nil {
			errs = append(errs, &UpdateError{Target: img.Kind, Stage: StageValidate, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (s *Session) checksums(images []*firmware.Image, res *Result) error {
	fmt.Fprint(s.out(), "Calculating CRC")
	defer fmt.Fprintln(s.out())
	for _, img := range images {
		crc, err := firmware.ComputeChecksum(img, s.BlockSize, func(int) {
			fmt.Fprint(s.out(), ".")
		})
		if err != nil {
			return &UpdateError{Target: img.Kind, Stage: StageCRC, Err: err}
		}
		logrus.Infof("%s: %s CRC 0x%08X", img.Name, img.Kind, crc)
		res.Checksums = append(res.Checksums, &Checksum{
			Target: img.Kind.String(),
			File:   img.Name,
			Size:   img.Size(),
			CRC:    fmt.Sprintf("0x%08X", crc),
		})
	}
	return nil
}

func (s *Session) updateVdp(ctx context.Context, img *firmware.Image, res *Result, mosPending bool) error {
	r, err := s.Vdp.FlashFirmware(ctx, img, s.out())
	if r != nil {
		res.Targets = append(res.Targets, r)
	}
	res.VdpHandshake = s.Vdp.State().String()
	if err == nil {
		if s.Batch {
			s.beep(2)
		}
		return nil
	}

	var unlock *flasher.UnlockFailedError
	if errors.As(err, &unlock) && mosPending && !s.Force {
		if perr := s.Prompter.AwaitEscape("Press ESC to continue"); perr != nil {
			return perr
		}
	}
	return &UpdateError{Target: firmware.VDP, Stage: vdpStage(s.Vdp.State()), Err: err}
}

func (s *Session) updateMos(ctx context.Context, img *firmware.Image, res *Result) error {
	r, err := s.Mos.FlashFirmware(ctx, img, s.out())
	if r != nil {
		res.Targets = append(res.Targets, r)
	}
	// the flash holds whatever the last attempt left, good or not
	var syncErr error
	if r != nil && len(r.Attempts) > 0 {
		syncErr = s.sync()
	}
	if err != nil {
		if RecoveryRequired(err) {
			fmt.Fprintln(s.out(), "Multiple errors occured during flash write.")
			fmt.Fprintln(s.out(), "Bare-metal recovery required.")
		}
		return errors.Join(&UpdateError{Target: firmware.MOS, Stage: mosStage(err), Err: err}, syncErr)
	}
	if syncErr != nil {
		return syncErr
	}

	fmt.Fprintln(s.out(), "Done")
	if s.Batch {
		fmt.Fprintln(s.out(), "Press reset button")
		s.beep(3)
		return nil
	}
	return s.reset(res)
}

func (s *Session) sync() error {
	if s.Persister == nil {
		return nil
	}
	if err := s.Persister.Sync(); err != nil {
		return &UpdateError{Target: firmware.MOS, Stage: StageStore, Err: err}
	}
	return nil
}

func (s *Session) reset(res *Result) error {
	fmt.Fprint(s.out(), "System reset in ")
	for n := 3; n > 0; n-- {
		fmt.Fprintf(s.out(), "%d...", n)
		s.sleep(time.Second)
	}
	fmt.Fprintln(s.out())
	if s.Resetter == nil {
		logrus.Warn("target has no reset line, reset it by hand")
		return nil
	}
	if err := s.Resetter.Reset(); err != nil {
		return err
	}
	res.Reset = true
	return nil
}

func (s *Session) beep(n int) {
	if s.Console == nil {
		return
	}
	if _, err := s.Console.Write(bytes.Repeat([]byte{vdp.Bell}, n)); err != nil {
		logrus.Warnf("beep: %s", err)
	}
}
