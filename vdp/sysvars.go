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

import "sync/atomic"

// SysVars holds the system variables the VDP updates through its packets.
// The VDP side is the only writer of each field, apart from the updater
// resetting ScreenHeight to mark "not yet responsive".
type SysVars struct {
	screenChar   atomic.Uint32
	screenWidth  atomic.Uint32
	screenHeight atomic.Uint32
	pollEcho     atomic.Uint32
}

// ScreenChar is the last character reported by a screen char request.
func (s *SysVars) ScreenChar() byte {
	return byte(s.screenChar.Load())
}

// SetScreenChar stores the answer to a screen char request.
func (s *SysVars) SetScreenChar(c byte) {
	s.screenChar.Store(uint32(c))
}

// ScreenHeight is the screen height reported by the last mode packet. It
// doubles as the liveness signal: zero means no report since the last reset.
func (s *SysVars) ScreenHeight() uint16 {
	return uint16(s.screenHeight.Load())
}

// SetScreenHeight stores the screen height.
func (s *SysVars) SetScreenHeight(h uint16) {
	s.screenHeight.Store(uint32(h))
}

// ScreenWidth is the screen width reported by the last mode packet.
func (s *SysVars) ScreenWidth() uint16 {
	return uint16(s.screenWidth.Load())
}

// SetScreenWidth stores the screen width.
func (s *SysVars) SetScreenWidth(w uint16) {
	s.screenWidth.Store(uint32(w))
}

// PollEcho is the value returned by the last general poll.
func (s *SysVars) PollEcho() byte {
	return byte(s.pollEcho.Load())
}

// SetPollEcho stores a general poll answer.
func (s *SysVars) SetPollEcho(v byte) {
	s.pollEcho.Store(uint32(v))
}
