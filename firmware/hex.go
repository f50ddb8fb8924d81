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

import (
	"fmt"

	"github.com/arduino/go-paths-helper"
	"github.com/marcinbor85/gohex"
	"github.com/sirupsen/logrus"
)

// OpenHex decodes an Intel HEX file into a flat image. The image starts at
// the lowest address present in the file, gaps are filled with 0xFF like
// erased flash.
func OpenHex(path *paths.Path, k Kind) (*Image, error) {
	f, err := path.Open()
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		err = fmt.Errorf("parsing Intel HEX %s: %w", path, err)
		logrus.Error(err)
		return nil, err
	}
	data := flatten(mem)
	logrus.Debugf("decoded %s firmware %s: %d bytes", k, path, len(data))
	return Bytes(path.Base(), k, data), nil
}

func flatten(mem *gohex.Memory) []byte {
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return []byte{}
	}
	start := segments[0].Address
	end := start
	for _, seg := range segments {
		if seg.Address < start {
			start = seg.Address
		}
		if segEnd := seg.Address + uint32(len(seg.Data)); segEnd > end {
			end = segEnd
		}
	}
	return mem.ToBinary(start, end-start, 0xFF)
}
