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
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/arduino/agon-fwuploader/firmware"
	"github.com/arduino/agon-fwuploader/vdp"
	"github.com/stretchr/testify/require"
)

// fakeVdp answers VDU commands the way the VDP firmware does, without a
// serial line in between.
type fakeVdp struct {
	vars vdp.SysVars
	// ack is printed at row 3, column 8 after an unlock command.
	ack string
	// bootProbes is how many probes the new firmware ignores before it
	// reports its mode again.
	bootProbes int
	// height is reported in mode packets while the firmware runs.
	height uint16

	screen   map[[2]uint16]byte
	updating bool
	updates  int
	received []byte
	writes   [][]byte
}

func newFakeVdp(ack string) *fakeVdp {
	v := &fakeVdp{ack: ack, height: 480, screen: map[[2]uint16]byte{}}
	v.vars.SetScreenHeight(v.height)
	return v
}

func (v *fakeVdp) Write(p []byte) (int, error) {
	v.writes = append(v.writes, append([]byte(nil), p...))
	switch {
	case bytes.Equal(p, vdp.UnlockCommand()):
		for i := 0; i < len(v.ack); i++ {
			v.screen[[2]uint16{uint16(8 + i), 3}] = v.ack[i]
		}
	case len(p) == 7 && p[2] == 0x83:
		x := uint16(p[3]) | uint16(p[4])<<8
		y := uint16(p[5]) | uint16(p[6])<<8
		c, ok := v.screen[[2]uint16{x, y}]
		if !ok {
			c = ' '
		}
		v.vars.SetScreenChar(c)
	case bytes.Equal(p, vdp.ModeInfoRequest()):
		if v.updating {
			if v.bootProbes > 0 {
				v.bootProbes--
				return len(p), nil
			}
			v.updating = false
		}
		v.vars.SetScreenHeight(v.height)
	}
	return len(p), nil
}

func (v *fakeVdp) SysVars() *vdp.SysVars {
	return &v.vars
}

func (v *fakeVdp) StartUpdate(src io.Reader, size int64) error {
	data, err := io.ReadAll(io.LimitReader(src, size))
	if err != nil {
		return err
	}
	v.updates++
	v.updating = true
	v.received = data
	return nil
}

func (v *fakeVdp) count(cmd []byte) int {
	n := 0
	for _, w := range v.writes {
		if bytes.Equal(w, cmd) {
			n++
		}
	}
	return n
}

func vdpImage() *firmware.Image {
	data := make([]byte, 0x100)
	copy(data[0x20:], []byte{0x32, 0x54, 0xCD, 0xAB})
	return firmware.Bytes("firmware.bin", firmware.VDP, data)
}

func noSleep(time.Duration) {}

func TestVdpFlashUnlocked(t *testing.T) {
	console := newFakeVdp("unlocked!")
	console.bootProbes = 5
	var slept time.Duration
	f := NewVdpFlasher(console, WithSleep(func(d time.Duration) { slept += d }))
	var progress []int
	f.SetProgressCallback(func(p int) { progress = append(progress, p) })

	img := vdpImage()
	out := &bytes.Buffer{}
	res, err := f.FlashFirmware(context.Background(), img, out)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, Complete, f.State())
	require.Equal(t, 1, console.updates)
	require.Len(t, console.received, 0x100)
	require.Equal(t, uint16(480), console.vars.ScreenHeight())
	require.Equal(t, []int{0, 100}, progress)
	require.Contains(t, out.String(), "Updating VDP firmware")

	// 10 characters read with 120ms each, 6 probes of 150ms
	require.Equal(t, 10*120*time.Millisecond+6*DefaultProbeInterval, slept)
	require.Equal(t, 6, console.count(vdp.FlowControlOff()))
	require.Equal(t, 6, console.count(vdp.GeneralPoll(1)))
}

func TestVdpUnlockNotSupported(t *testing.T) {
	for _, ack := range []string{"", "unlocked?", "Unlocked!", "locked!!!"} {
		console := newFakeVdp(ack)
		f := NewVdpFlasher(console, WithSleep(noSleep))

		out := &bytes.Buffer{}
		res, err := f.FlashFirmware(context.Background(), vdpImage(), out)
		var unlock *UnlockFailedError
		require.True(t, errors.As(err, &unlock), "ack %q", ack)
		require.Len(t, unlock.Response, 9)
		require.False(t, res.Success)
		require.Equal(t, NotSupported, f.State())
		require.Zero(t, console.updates)
		require.Zero(t, console.count(vdp.FlowControlOff()))
		// liveness is handed back so the VDP keeps working as before
		require.Equal(t, uint16(480), console.vars.ScreenHeight())
		require.Contains(t, out.String(), "OTA not present")
	}
}

func TestVdpUnlockStates(t *testing.T) {
	console := newFakeVdp("unlocked!")
	f := NewVdpFlasher(console, WithSleep(noSleep))
	require.Equal(t, Locked, f.State())

	require.Error(t, f.Trigger(vdpImage()))
	require.Zero(t, console.updates)

	require.NoError(t, f.WaitReady(context.Background()))
	require.Zero(t, console.vars.ScreenHeight())
	require.NoError(t, f.Unlock())
	require.Equal(t, Unlocked, f.State())
	require.NoError(t, f.Trigger(vdpImage()))
	require.Equal(t, TransferTriggered, f.State())
	require.Equal(t, 1, console.updates)
}

func TestVdpUnlockReadsScreen(t *testing.T) {
	console := newFakeVdp("unlocked!")
	f := NewVdpFlasher(console, WithSleep(noSleep))
	require.NoError(t, f.Unlock())

	require.Equal(t, vdp.UnlockCommand(), console.writes[0])
	require.Len(t, console.writes, 11)
	for n, w := range console.writes[1:] {
		require.Equal(t, vdp.ScreenCharRequest(uint16(8+n), 3), w)
	}
}

func TestVdpWaitReady(t *testing.T) {
	console := newFakeVdp("unlocked!")
	console.vars.SetScreenHeight(0)
	console.height = 600
	f := NewVdpFlasher(console, WithSleep(noSleep))

	require.NoError(t, f.WaitReady(context.Background()))
	require.Zero(t, console.vars.ScreenHeight())
	require.Equal(t, 1, console.count(vdp.ModeInfoRequest()))
	f.RestoreLiveness()
	require.Equal(t, uint16(600), console.vars.ScreenHeight())
}

func TestVdpAwaitLivenessPollLimit(t *testing.T) {
	console := newFakeVdp("unlocked!")
	console.bootProbes = 100
	f := NewVdpFlasher(console, WithSleep(noSleep), WithPollLimit(10))

	_, err := f.FlashFirmware(context.Background(), vdpImage(), io.Discard)
	require.Error(t, err)
	require.IsType(t, FlasherError{}, err)
	require.Equal(t, AwaitingLiveness, f.State())
	require.Equal(t, 10, console.count(vdp.FlowControlOff()))
}

func TestVdpAwaitLivenessCanceled(t *testing.T) {
	console := newFakeVdp("unlocked!")
	console.bootProbes = 1 << 30
	ctx, cancel := context.WithCancel(context.Background())
	probes := 0
	f := NewVdpFlasher(console, WithSleep(func(d time.Duration) {
		if d == DefaultProbeInterval {
			probes++
			if probes == 3 {
				cancel()
			}
		}
	}))

	_, err := f.FlashFirmware(ctx, vdpImage(), io.Discard)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, probes)
	require.Zero(t, console.vars.ScreenHeight())
}

func TestVdpProbeSequence(t *testing.T) {
	console := newFakeVdp("unlocked!")
	console.updating = true
	console.bootProbes = 1
	console.vars.SetScreenHeight(0)
	f := NewVdpFlasher(console, WithSleep(noSleep))

	probes, err := f.AwaitLiveness(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, probes)
	require.Equal(t, [][]byte{
		vdp.FlowControlOff(), vdp.GeneralPoll(1), vdp.ModeInfoRequest(),
		vdp.FlowControlOff(), vdp.GeneralPoll(1), vdp.ModeInfoRequest(),
	}, console.writes)
}

type echoVdp struct {
	*fakeVdp
	silent bool
}

func (v *echoVdp) Write(p []byte) (int, error) {
	if len(p) == 4 && p[2] == 0x80 && !v.silent {
		v.vars.SetPollEcho(p[3])
		v.vars.SetScreenWidth(640)
	}
	return v.fakeVdp.Write(p)
}

func TestVdpStatus(t *testing.T) {
	console := &echoVdp{fakeVdp: newFakeVdp("")}
	console.vars.SetPollEcho(0x41)
	f := NewVdpFlasher(console, WithSleep(noSleep))

	status, err := f.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, &VdpStatus{Responding: true, Width: 640, Height: 480}, status)
	require.Equal(t, vdp.GeneralPoll(0x42), console.writes[0])
	require.Equal(t, Locked, f.State())

	console.silent = true
	f = NewVdpFlasher(console, WithSleep(noSleep), WithPollLimit(3))
	status, err = f.Status(context.Background())
	require.NoError(t, err)
	require.False(t, status.Responding)
	require.Equal(t, 3, console.count(vdp.GeneralPoll(0x43)))
}
