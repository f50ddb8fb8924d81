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
	"io"

	"github.com/arduino/agon-fwuploader/checksum"
	"github.com/sirupsen/logrus"
)

// DefaultBlockSize is the chunk size used to read firmware sources.
const DefaultBlockSize = 16384

func normalizeBlockSize(blockSize int) int {
	if blockSize <= 0 {
		return DefaultBlockSize
	}
	return blockSize
}

// Load reads src until exhaustion in chunks of at most blockSize bytes,
// copies them to region starting at offset 0 and returns the number of bytes
// moved and their CRC-32. A blockSize of zero selects DefaultBlockSize.
// onChunk, if not nil, is called after every chunk.
//
// On a read failure the bytes already in region are left there, the caller
// must not use them.
func Load(src io.Reader, region []byte, blockSize int, onChunk func(n int)) (int, uint32, error) {
	blockSize = normalizeBlockSize(blockSize)
	acc := checksum.Init()
	moved := 0
	for {
		chunk := blockSize
		if free := len(region) - moved; free < chunk {
			chunk = free
		}
		if chunk == 0 {
			// region is full, anything left in src does not fit
			var probe [1]byte
			if n, _ := src.Read(probe[:]); n > 0 {
				return moved, 0, &ImageTooLargeError{Size: int64(moved + n), Limit: int64(len(region))}
			}
			return moved, acc.Finalize(), nil
		}
		n, err := src.Read(region[moved : moved+chunk])
		if n > 0 {
			acc = acc.Feed(region[moved : moved+n])
			moved += n
			if onChunk != nil {
				onChunk(n)
			}
		}
		if err == io.EOF {
			return moved, acc.Finalize(), nil
		}
		if err != nil {
			return moved, 0, &SourceUnreadableError{Offset: int64(moved), Err: err}
		}
	}
}

// Stage rewinds img and loads it into region.
func Stage(img *Image, region []byte, blockSize int, onChunk func(n int)) (int, uint32, error) {
	if err := img.Rewind(); err != nil {
		err = &SourceUnreadableError{Name: img.Name, Err: err}
		logrus.Error(err)
		return 0, 0, err
	}
	n, crc, err := Load(img, region, blockSize, onChunk)
	if err != nil {
		switch e := err.(type) {
		case *SourceUnreadableError:
			e.Name = img.Name
		case *ImageTooLargeError:
			e.Name = img.Name
		}
		logrus.Error(err)
		return n, 0, err
	}
	logrus.Debugf("staged %d bytes of %s, crc 0x%08X", n, img.Name, crc)
	return n, crc, img.Rewind()
}

// ComputeChecksum streams img once, stores its CRC-32 in img.Checksum and
// rewinds it.
func ComputeChecksum(img *Image, blockSize int, onChunk func(n int)) (uint32, error) {
	if err := img.Rewind(); err != nil {
		err = &SourceUnreadableError{Name: img.Name, Err: err}
		logrus.Error(err)
		return 0, err
	}
	acc := checksum.Init()
	buf := make([]byte, normalizeBlockSize(blockSize))
	var offset int64
	for {
		n, err := img.Read(buf)
		if n > 0 {
			acc = acc.Feed(buf[:n])
			offset += int64(n)
			if onChunk != nil {
				onChunk(n)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			err = &SourceUnreadableError{Name: img.Name, Offset: offset, Err: err}
			logrus.Error(err)
			return 0, err
		}
	}
	img.Checksum = acc.Finalize()
	logrus.Debugf("%s crc 0x%08X over %d bytes", img.Name, img.Checksum, offset)
	return img.Checksum, img.Rewind()
}
