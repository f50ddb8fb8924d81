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
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

// Packet codes sent by the VDP.
const (
	PacketGeneralPoll byte = 0x00
	PacketKeyboard    byte = 0x01
	PacketCursor      byte = 0x02
	PacketScreenChar  byte = 0x03
	PacketModeInfo    byte = 0x06
)

// Packet is a system packet received from the VDP.
type Packet struct {
	Code byte
	Data []byte
}

// Apply updates vars the way the MOS UART interrupt handler does.
func (p Packet) Apply(vars *SysVars) {
	switch p.Code {
	case PacketGeneralPoll:
		if len(p.Data) >= 1 {
			vars.SetPollEcho(p.Data[0])
		}
	case PacketScreenChar:
		if len(p.Data) >= 1 {
			vars.SetScreenChar(p.Data[0])
		}
	case PacketModeInfo:
		if len(p.Data) >= 4 {
			vars.SetScreenWidth(binary.LittleEndian.Uint16(p.Data[0:]))
			vars.SetScreenHeight(binary.LittleEndian.Uint16(p.Data[2:]))
		}
	default:
		logrus.Tracef("ignoring VDP packet 0x%02X", p.Code)
	}
}

type decoderState int

const (
	waitCode decoderState = iota
	waitLength
	waitData
)

// Decoder splits the VDP byte stream into packets. A packet is a code byte
// with bit 7 set, a length byte and length bytes of data. Bytes outside a
// packet are dropped.
type Decoder struct {
	state decoderState
	code  byte
	want  int
	data  []byte
}

// Feed consumes b and calls emit for every complete packet.
func (d *Decoder) Feed(b []byte, emit func(Packet)) {
	for _, c := range b {
		switch d.state {
		case waitCode:
			if c&0x80 == 0 {
				continue
			}
			d.code = c & 0x7F
			d.state = waitLength
		case waitLength:
			d.want = int(c)
			d.data = make([]byte, 0, d.want)
			d.state = waitData
			if d.want == 0 {
				d.state = waitCode
				emit(Packet{Code: d.code, Data: d.data})
			}
		case waitData:
			d.data = append(d.data, c)
			if len(d.data) == d.want {
				d.state = waitCode
				emit(Packet{Code: d.code, Data: d.data})
			}
		}
	}
}
