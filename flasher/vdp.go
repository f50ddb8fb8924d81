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
	"time"

	"github.com/arduino/agon-fwuploader/firmware"
	"github.com/arduino/agon-fwuploader/vdp"
	"github.com/sirupsen/logrus"
)

// HandshakeState is a step of the VDP update handshake.
type HandshakeState int

const (
	Locked HandshakeState = iota
	UnlockRequested
	Unlocked
	TransferTriggered
	AwaitingLiveness
	Complete
	// NotSupported is terminal: the VDP firmware has no OTA support.
	NotSupported
)

func (s HandshakeState) String() string {
	return [...]string{
		"locked",
		"unlock requested",
		"unlocked",
		"transfer triggered",
		"awaiting liveness",
		"complete",
		"failed: not supported",
	}[s]
}

const (
	// DefaultProbeInterval is the pause after each liveness probe.
	DefaultProbeInterval = 150 * time.Millisecond

	unlockResponse = "unlocked!"
	unlockColumn   = 8
	unlockRow      = 3
)

// VdpFlasher drives the VDP OTA handshake. The VDP's own bootloader does
// the transfer, the flasher only unlocks it, hands over the image and waits
// for the new firmware to answer again.
type VdpFlasher struct {
	console          vdp.Console
	sleep            func(time.Duration)
	probeInterval    time.Duration
	pollLimit        int
	state            HandshakeState
	savedLiveness    uint16
	progressCallback func(int)
}

// VdpOption configures a VdpFlasher.
type VdpOption func(*VdpFlasher)

// WithSleep replaces time.Sleep for the handshake delays.
func WithSleep(sleep func(time.Duration)) VdpOption {
	return func(f *VdpFlasher) {
		f.sleep = sleep
	}
}

// WithProbeInterval sets the pause after each liveness probe.
func WithProbeInterval(d time.Duration) VdpOption {
	return func(f *VdpFlasher) {
		f.probeInterval = d
	}
}

// WithPollLimit bounds the number of liveness probes. Zero, the default,
// waits forever: the update takes as long as the VDP needs.
func WithPollLimit(n int) VdpOption {
	return func(f *VdpFlasher) {
		f.pollLimit = n
	}
}

// NewVdpFlasher creates a VdpFlasher talking through console.
func NewVdpFlasher(console vdp.Console, opts ...VdpOption) *VdpFlasher {
	f := &VdpFlasher{
		console:       console,
		sleep:         time.Sleep,
		probeInterval: DefaultProbeInterval,
		state:         Locked,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetProgressCallback sets the function receiving the progress in percent.
// The VDP reports nothing during the transfer, so only start and end are
// signalled.
func (f *VdpFlasher) SetProgressCallback(callback func(progress int)) {
	f.progressCallback = callback
}

// State returns the handshake state.
func (f *VdpFlasher) State() HandshakeState {
	return f.state
}

func (f *VdpFlasher) setState(s HandshakeState) {
	logrus.Debugf("VDP handshake: %s", s)
	f.state = s
}

func (f *VdpFlasher) progress(p int) {
	if f.progressCallback != nil {
		f.progressCallback(p)
	}
}

func (f *VdpFlasher) send(b []byte) error {
	if _, err := f.console.Write(b); err != nil {
		logrus.Error(err)
		return err
	}
	return nil
}

// FlashFirmware runs the whole handshake for img.
func (f *VdpFlasher) FlashFirmware(ctx context.Context, img *firmware.Image, flasherOut io.Writer) (*FlashResult, error) {
	logrus.Infof("Flashing VDP firmware %s", img.Name)
	res := newResult(img)

	if err := f.WaitReady(ctx); err != nil {
		return res, err
	}

	fmt.Fprintln(flasherOut, "Unlocking VDP updater...")
	if err := f.Unlock(); err != nil {
		fmt.Fprintln(flasherOut, " failed - OTA not present in current VDP")
		fmt.Fprintln(flasherOut, "Program the VDP using Arduino / PlatformIO / esptool")
		return res, err
	}

	fmt.Fprintln(flasherOut, "Updating VDP firmware")
	if err := f.Trigger(img); err != nil {
		return res, err
	}
	probes, err := f.AwaitLiveness(ctx)
	if err != nil {
		return res, err
	}
	logrus.Infof("VDP answered again after %d probes", probes)
	res.Success = true
	return res, nil
}

// WaitReady waits for the first liveness report of the running VDP
// firmware, remembers it and resets the signal to zero.
func (f *VdpFlasher) WaitReady(ctx context.Context) error {
	vars := f.console.SysVars()
	for probes := 0; vars.ScreenHeight() == 0; probes++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.pollLimit > 0 && probes >= f.pollLimit {
			err := FlasherError{err: fmt.Sprintf("VDP did not report after %d requests", probes)}
			logrus.Error(err)
			return err
		}
		if err := f.send(vdp.ModeInfoRequest()); err != nil {
			return err
		}
		f.sleep(f.probeInterval)
	}
	f.savedLiveness = vars.ScreenHeight()
	vars.SetScreenHeight(0)
	return nil
}

// Unlock sends the unlock command and checks that the VDP printed the
// acknowledgement. A VDP without OTA support leaves the handshake in
// NotSupported and gets its liveness value back.
func (f *VdpFlasher) Unlock() error {
	if err := f.send(vdp.UnlockCommand()); err != nil {
		return err
	}
	f.setState(UnlockRequested)

	// one character past the acknowledgement is read, as the VDP does not
	// terminate it
	response := make([]byte, len(unlockResponse)+1)
	for n := range response {
		c, err := f.charAt(uint16(unlockColumn+n), unlockRow)
		if err != nil {
			return err
		}
		response[n] = c
	}
	if string(response[:len(unlockResponse)]) != unlockResponse {
		f.setState(NotSupported)
		f.console.SysVars().SetScreenHeight(f.savedLiveness)
		err := &UnlockFailedError{Response: string(response[:len(unlockResponse)])}
		logrus.Error(err)
		return err
	}
	f.setState(Unlocked)
	return nil
}

func (f *VdpFlasher) charAt(x, y uint16) (byte, error) {
	f.sleep(20 * time.Millisecond)
	if err := f.send(vdp.ScreenCharRequest(x, y)); err != nil {
		return 0, err
	}
	f.sleep(100 * time.Millisecond)
	return f.console.SysVars().ScreenChar(), nil
}

// Trigger hands img to the unlocked VDP.
func (f *VdpFlasher) Trigger(img *firmware.Image) error {
	if f.state != Unlocked {
		err := FlasherError{err: fmt.Sprintf("VDP update triggered in state %s", f.state)}
		logrus.Error(err)
		return err
	}
	if err := img.Rewind(); err != nil {
		logrus.Error(err)
		return err
	}
	f.console.SysVars().SetScreenHeight(0)
	f.progress(0)
	if err := f.console.StartUpdate(img, img.Size()); err != nil {
		return err
	}
	f.setState(TransferTriggered)
	return nil
}

// AwaitLiveness probes the VDP until the liveness signal is set again,
// which happens once the new firmware runs. It returns the number of probes
// sent. Only ctx or the poll limit end the wait early.
func (f *VdpFlasher) AwaitLiveness(ctx context.Context) (int, error) {
	f.setState(AwaitingLiveness)
	vars := f.console.SysVars()
	probes := 0
	for vars.ScreenHeight() == 0 {
		if err := ctx.Err(); err != nil {
			return probes, err
		}
		if f.pollLimit > 0 && probes >= f.pollLimit {
			err := FlasherError{err: fmt.Sprintf("VDP did not resume after %d probes", probes)}
			logrus.Error(err)
			return probes, err
		}
		if err := f.probe(); err != nil {
			return probes, err
		}
		probes++
	}
	f.setState(Complete)
	f.progress(100)
	return probes, nil
}

// probe sends one echo request. Flow control is switched off first, a VDP
// in the middle of an update does not answer it.
func (f *VdpFlasher) probe() error {
	for _, cmd := range [][]byte{vdp.FlowControlOff(), vdp.GeneralPoll(1), vdp.ModeInfoRequest()} {
		if err := f.send(cmd); err != nil {
			return err
		}
	}
	f.sleep(f.probeInterval)
	return nil
}

// RestoreLiveness puts back the liveness value seen before the handshake.
func (f *VdpFlasher) RestoreLiveness() {
	f.console.SysVars().SetScreenHeight(f.savedLiveness)
}

// VdpStatus is what a running VDP reports about itself.
type VdpStatus struct {
	Responding bool   `json:"responding"`
	Width      uint16 `json:"width"`
	Height     uint16 `json:"height"`
}

// statusProbes bounds Status when no poll limit is set.
const statusProbes = 10

// Status checks that the VDP echoes a general poll and reads its screen
// mode. It does not touch the handshake state.
func (f *VdpFlasher) Status(ctx context.Context) (*VdpStatus, error) {
	vars := f.console.SysVars()
	limit := f.pollLimit
	if limit == 0 {
		limit = statusProbes
	}
	// the echo must differ from whatever was left by earlier polls
	value := vars.PollEcho() + 1
	for probes := 0; probes < limit; probes++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := f.send(vdp.GeneralPoll(value)); err != nil {
			return nil, err
		}
		if err := f.send(vdp.ModeInfoRequest()); err != nil {
			return nil, err
		}
		f.sleep(f.probeInterval)
		if vars.PollEcho() == value {
			return &VdpStatus{Responding: true, Width: vars.ScreenWidth(), Height: vars.ScreenHeight()}, nil
		}
	}
	logrus.Warnf("VDP did not echo general poll after %d probes", limit)
	return &VdpStatus{}, nil
}
