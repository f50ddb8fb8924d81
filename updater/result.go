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

package updater

import (
	"fmt"
	"strings"

	"github.com/arduino/agon-fwuploader/flasher"
)

// Checksum is the CRC-32 of one selected image.
type Checksum struct {
	Target string `json:"target"`
	File   string `json:"file"`
	Size   int64  `json:"size"`
	CRC    string `json:"crc"`
}

// Result describes an update session.
type Result struct {
	Checksums    []*Checksum            `json:"checksums"`
	Targets      []*flasher.FlashResult `json:"targets,omitempty"`
	VdpHandshake string                 `json:"vdp_handshake,omitempty"`
	Aborted      bool                   `json:"aborted,omitempty"`
	Reset        bool                   `json:"reset"`
}

// Data implements feedback.Result interface
func (r *Result) Data() interface{} {
	return r
}

func (r *Result) String() string {
	var b strings.Builder
	for _, c := range r.Checksums {
		fmt.Fprintf(&b, "%s CRC %s (%s, %d bytes)\n", c.Target, c.CRC, c.File, c.Size)
	}
	for _, t := range r.Targets {
		status := "FAILED"
		if t.Success {
			status = "OK"
		}
		fmt.Fprintf(&b, "%s update %s", t.Target, status)
		if len(t.Attempts) > 0 {
			fmt.Fprintf(&b, " after %d attempt(s)", len(t.Attempts))
		}
		b.WriteString("\n")
	}
	if r.Aborted {
		b.WriteString("User abort\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
