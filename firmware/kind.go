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

package firmware

import "bytes"

// Kind identifies which processor an image is built for.
type Kind int

const (
	// MOS is the eZ80 application processor firmware, flashed to internal flash.
	MOS Kind = iota
	// VDP is the ESP32 coprocessor firmware, transferred over the VDP link.
	VDP
)

// MosFlashSize is the capacity of the eZ80F92 internal flash.
const MosFlashSize = 0x20000

// VdpMaxSize is the largest size the VDP update command can announce, its
// length field is 24 bits wide.
const VdpMaxSize = 0xFFFFFF

var (
	mosMagic = []byte{0xF3, 0xED, 0x7D, 0x5B, 0xC3}

	esp32Magic       = []byte{0x32, 0x54, 0xCD, 0xAB}
	esp32MagicOffset = 0x20
)

func (k Kind) String() string {
	switch k {
	case MOS:
		return "MOS"
	case VDP:
		return "VDP"
	}
	return "unknown"
}

// HeaderSize returns how many leading bytes LooksLike needs for k.
func (k Kind) HeaderSize() int {
	if k == VDP {
		return esp32MagicOffset + len(esp32Magic)
	}
	return len(mosMagic)
}

// MaxSize returns the largest accepted image size for k, 0 means unbounded.
func (k Kind) MaxSize() int64 {
	switch k {
	case MOS:
		return MosFlashSize
	case VDP:
		return VdpMaxSize
	}
	return 0
}

// Description names what a valid image of kind k contains.
func (k Kind) Description() string {
	if k == VDP {
		return "ESP32 code"
	}
	return "MOS ez80 startup code"
}

// LooksLike reports whether image starts the way an image of kind k does.
// MOS images begin with the eZ80 reset vector code, ESP32 application
// images carry the app descriptor magic word at offset 0x20.
// A short buffer never matches.
func LooksLike(image []byte, k Kind) bool {
	switch k {
	case MOS:
		return len(image) >= len(mosMagic) && bytes.Equal(image[:len(mosMagic)], mosMagic)
	case VDP:
		end := esp32MagicOffset + len(esp32Magic)
		return len(image) >= end && bytes.Equal(image[esp32MagicOffset:end], esp32Magic)
	}
	return false
}
