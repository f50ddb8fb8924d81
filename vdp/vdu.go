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

// Package vdp talks to the ESP32 video display processor (VDP) that sits
// on the other end of the eZ80 UART: VDU command encoding, the system
// packets the VDP sends back, and the system variables they update.
package vdp

import (
	"encoding/binary"
	"io"
)

// VDU control codes.
const (
	Bell        byte = 7
	ClearScreen byte = 12
	VDU23       byte = 23
)

// VDU 23,0 system commands.
const (
	cmdGeneralPoll byte = 0x80
	cmdScreenChar  byte = 0x83
	cmdModeInfo    byte = 0x86
	cmdUpdate      byte = 0xA1
	cmdFlowControl byte = 0xF9
)

// OTA update sub commands of cmdUpdate.
const (
	updateUnlock byte = 0x00
	updateBegin  byte = 0x01
)

// UnlockKeyword is sent after the update unlock command.
const UnlockKeyword = "unlock"

func system(cmd byte, args ...byte) []byte {
	return append([]byte{VDU23, 0, cmd}, args...)
}

// UnlockCommand asks VDP builds with OTA support to accept an update. They
// answer by printing "unlocked!" on the screen.
func UnlockCommand() []byte {
	return append(system(cmdUpdate, updateUnlock), UnlockKeyword...)
}

// ScreenCharRequest asks for the character at text position x, y. The
// answer updates SysVars.ScreenChar.
func ScreenCharRequest(x, y uint16) []byte {
	b := system(cmdScreenChar, 0, 0, 0, 0)
	binary.LittleEndian.PutUint16(b[3:], x)
	binary.LittleEndian.PutUint16(b[5:], y)
	return b
}

// FlowControlOff disables the VDP flow control handshake.
func FlowControlOff() []byte {
	return system(cmdFlowControl, 0x01, 0x01)
}

// GeneralPoll asks the VDP to echo value back.
func GeneralPoll(value byte) []byte {
	return system(cmdGeneralPoll, value)
}

// ModeInfoRequest asks for the screen dimensions. The answer updates
// SysVars.ScreenHeight.
func ModeInfoRequest() []byte {
	return system(cmdModeInfo)
}

// UpdateBegin starts the transfer of an unlocked update of size bytes.
// The image follows, then one byte with the low 8 bits of the sum of all
// image bytes.
func UpdateBegin(size int64) []byte {
	return system(cmdUpdate, updateBegin, byte(size), byte(size>>8), byte(size>>16))
}

// Console is the updater's view of the VDP: a VDU byte stream, the system
// variables kept current by the VDP's answers, and the MOS call that
// streams an unlocked update.
type Console interface {
	io.Writer
	SysVars() *SysVars
	StartUpdate(src io.Reader, size int64) error
}
