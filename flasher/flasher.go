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

	"github.com/arduino/agon-fwuploader/firmware"
)

// Flasher writes a firmware image to one of the two processors.
type Flasher interface {
	// FlashFirmware updates the target with img. img.Checksum must hold
	// the checksum computed by an earlier full read of the image.
	FlashFirmware(ctx context.Context, img *firmware.Image, flasherOut io.Writer) (*FlashResult, error)
	SetProgressCallback(func(progress int))
}

// FlashResult describes a finished update of one target.
type FlashResult struct {
	Target   string     `json:"target"`
	File     string     `json:"file"`
	Size     int64      `json:"size"`
	Checksum string     `json:"checksum"`
	Attempts []*Attempt `json:"attempts,omitempty"`
	Success  bool       `json:"success"`
}

func newResult(img *firmware.Image) *FlashResult {
	return &FlashResult{
		Target:   img.Kind.String(),
		File:     img.Name,
		Size:     img.Size(),
		Checksum: fmt.Sprintf("0x%08X", img.Checksum),
	}
}

// Attempt is one erase, program and verify cycle.
type Attempt struct {
	Number   int    `json:"number"`
	Expected uint32 `json:"expected"`
	Observed uint32 `json:"observed"`
	Success  bool   `json:"success"`
}
