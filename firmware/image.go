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
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
)

// Source is a rewindable firmware byte stream with a known length.
// *bytes.Reader satisfies it.
type Source interface {
	io.ReadSeeker
	Size() int64
}

// Image is a firmware file selected for an update.
type Image struct {
	Name string
	Kind Kind

	// Checksum is the CRC-32 computed by ComputeChecksum, the reference
	// every later read of the image is compared against.
	Checksum uint32

	src    Source
	closer io.Closer
}

// NewImage wraps src as an image of kind k.
func NewImage(name string, k Kind, src Source) *Image {
	return &Image{Name: name, Kind: k, src: src}
}

type fileSource struct {
	*os.File
	size int64
}

func (f *fileSource) Size() int64 {
	return f.size
}

// Open opens the firmware file at path. Files with a .hex extension are
// decoded as Intel HEX, everything else is taken as a raw binary.
func Open(path *paths.Path, k Kind) (*Image, error) {
	if strings.EqualFold(path.Ext(), ".hex") {
		return OpenHex(path, k)
	}
	info, err := path.Stat()
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	f, err := path.Open()
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	logrus.Debugf("opened %s firmware %s (%d bytes)", k, path, info.Size())
	return &Image{
		Name:   path.Base(),
		Kind:   k,
		src:    &fileSource{File: f, size: info.Size()},
		closer: f,
	}, nil
}

// Size returns the image length in bytes.
func (img *Image) Size() int64 {
	return img.src.Size()
}

// Read implements io.Reader.
func (img *Image) Read(p []byte) (int, error) {
	return img.src.Read(p)
}

// Seek implements io.Seeker.
func (img *Image) Seek(offset int64, whence int) (int64, error) {
	return img.src.Seek(offset, whence)
}

// Rewind moves the read position back to the start of the image.
func (img *Image) Rewind() error {
	_, err := img.src.Seek(0, io.SeekStart)
	return err
}

// Header returns the first n bytes of the image (fewer if the image is
// shorter) and leaves the read position at the start.
func (img *Image) Header(n int) ([]byte, error) {
	if err := img.Rewind(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(img.src, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, &SourceUnreadableError{Name: img.Name, Offset: int64(read), Err: err}
	}
	if err := img.Rewind(); err != nil {
		return nil, err
	}
	return buf[:read], nil
}

// Close releases the underlying file, if any.
func (img *Image) Close() error {
	if img.closer == nil {
		return nil
	}
	return img.closer.Close()
}

// Bytes wraps data as an in-memory image.
func Bytes(name string, k Kind, data []byte) *Image {
	return NewImage(name, k, bytes.NewReader(data))
}
