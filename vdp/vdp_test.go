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

package vdp

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	require.Equal(t, []byte{23, 0, 0xA1, 0, 'u', 'n', 'l', 'o', 'c', 'k'}, UnlockCommand())
	require.Equal(t, []byte{23, 0, 0x83, 0x08, 0x01, 0x03, 0x00}, ScreenCharRequest(0x108, 3))
	require.Equal(t, []byte{23, 0, 0xF9, 0x01, 0x01}, FlowControlOff())
	require.Equal(t, []byte{23, 0, 0x80, 0x01}, GeneralPoll(1))
	require.Equal(t, []byte{23, 0, 0x86}, ModeInfoRequest())
	require.Equal(t, []byte{23, 0, 0xA1, 0x01, 0x56, 0x34, 0x12}, UpdateBegin(0x123456))
}

func modePacket(width, height uint16) []byte {
	return []byte{0x80 | PacketModeInfo, 8, byte(width), byte(width >> 8), byte(height), byte(height >> 8), 80, 60, 64, 0}
}

func TestDecoder(t *testing.T) {
	stream := append([]byte{'x', 0x0D}, modePacket(640, 480)...)
	stream = append(stream, 0x80|PacketScreenChar, 1, 'u')
	stream = append(stream, 0x80|PacketGeneralPoll, 1, 0x42)
	stream = append(stream, 0x80|PacketCursor, 0)

	testrunner := func(chunk int) {
		var dec Decoder
		var packets []Packet
		for i := 0; i < len(stream); i += chunk {
			end := i + chunk
			if end > len(stream) {
				end = len(stream)
			}
			dec.Feed(stream[i:end], func(p Packet) { packets = append(packets, p) })
		}
		require.Len(t, packets, 4)
		require.Equal(t, PacketModeInfo, packets[0].Code)
		require.Equal(t, PacketCursor, packets[3].Code)
		require.Empty(t, packets[3].Data)

		var vars SysVars
		for _, p := range packets {
			p.Apply(&vars)
		}
		require.Equal(t, uint16(640), vars.ScreenWidth())
		require.Equal(t, uint16(480), vars.ScreenHeight())
		require.Equal(t, byte('u'), vars.ScreenChar())
		require.Equal(t, byte(0x42), vars.PollEcho())
	}
	for _, chunk := range []int{1, 2, 3, 7, len(stream)} {
		testrunner(chunk)
	}
}

func TestShortPacketsAreIgnored(t *testing.T) {
	var vars SysVars
	vars.SetScreenHeight(480)
	Packet{Code: PacketModeInfo, Data: []byte{1, 2}}.Apply(&vars)
	require.Equal(t, uint16(480), vars.ScreenHeight())
}

func TestLink(t *testing.T) {
	vdpEnd, hostEnd := net.Pipe()
	link := NewLink(hostEnd)

	t.Run("packets update sysvars", func(t *testing.T) {
		_, err := vdpEnd.Write(modePacket(1024, 768))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return link.SysVars().ScreenHeight() == 768 }, time.Second, time.Millisecond)
	})

	t.Run("write", func(t *testing.T) {
		done := make(chan []byte)
		go func() {
			buf := make([]byte, len(ModeInfoRequest()))
			io.ReadFull(vdpEnd, buf)
			done <- buf
		}()
		_, err := link.Write(ModeInfoRequest())
		require.NoError(t, err)
		require.Equal(t, ModeInfoRequest(), <-done)
	})

	t.Run("update transfer", func(t *testing.T) {
		image := bytes.Repeat([]byte{0x01, 0x02, 0x03}, 1000)
		want := append(UpdateBegin(int64(len(image))), image...)
		want = append(want, byte(6000%256))

		done := make(chan []byte)
		go func() {
			buf := make([]byte, len(want))
			io.ReadFull(vdpEnd, buf)
			done <- buf
		}()
		require.NoError(t, link.StartUpdate(bytes.NewReader(image), int64(len(image))))
		require.Equal(t, want, <-done)
	})

	t.Run("short source", func(t *testing.T) {
		go io.Copy(io.Discard, vdpEnd)
		require.Error(t, link.StartUpdate(bytes.NewReader([]byte{1, 2}), 10))
	})

	require.NoError(t, link.Close())
}
