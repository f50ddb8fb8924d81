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
	"errors"
	"io"
	"testing"

	"github.com/arduino/agon-fwuploader/checksum"
	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/require"
)

func mosImage(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	copy(data, mosMagic)
	return data
}

func vdpImage(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	copy(data[0x20:], esp32Magic)
	return data
}

func TestLooksLikeMos(t *testing.T) {
	require.True(t, LooksLike([]byte{0xF3, 0xED, 0x7D, 0x5B, 0xC3}, MOS))
	require.True(t, LooksLike(mosImage(2048), MOS))
	require.False(t, LooksLike([]byte{0xF3, 0xED, 0x7D, 0x5B}, MOS))
	require.False(t, LooksLike(nil, MOS))
	for i := 0; i < len(mosMagic); i++ {
		data := mosImage(64)
		data[i] ^= 0x01
		require.False(t, LooksLike(data, MOS), "flipped byte %d", i)
	}
	require.False(t, LooksLike(vdpImage(64), MOS))
}

func TestLooksLikeVdp(t *testing.T) {
	require.True(t, LooksLike(vdpImage(0x24), VDP))
	require.False(t, LooksLike(vdpImage(0x23), VDP))

	// only the 4 bytes at 0x20 matter
	data := vdpImage(256)
	for i := 0; i < len(data); i++ {
		changed := append([]byte(nil), data...)
		changed[i] ^= 0xFF
		inRange := i >= 0x20 && i < 0x24
		require.Equal(t, !inRange, LooksLike(changed, VDP), "byte %d", i)
	}
	require.False(t, LooksLike(mosImage(256), VDP))
}

func TestValidate(t *testing.T) {
	t.Run("valid mos", func(t *testing.T) {
		img := Bytes("MOS.bin", MOS, mosImage(2048))
		require.NoError(t, Validate(img))
		pos, err := img.Seek(0, io.SeekCurrent)
		require.NoError(t, err)
		require.Zero(t, pos)
	})
	t.Run("wrong kind", func(t *testing.T) {
		err := Validate(Bytes("firmware.bin", MOS, vdpImage(2048)))
		var kindErr *WrongImageKindError
		require.True(t, errors.As(err, &kindErr))
		require.Equal(t, MOS, kindErr.Kind)
		require.Equal(t, "\"firmware.bin\" does not contain valid MOS ez80 startup code", err.Error())
	})
	t.Run("too large", func(t *testing.T) {
		err := Validate(Bytes("MOS.bin", MOS, mosImage(MosFlashSize+1)))
		var sizeErr *ImageTooLargeError
		require.True(t, errors.As(err, &sizeErr))
		require.Equal(t, int64(MosFlashSize), sizeErr.Limit)
	})
	t.Run("exact flash size", func(t *testing.T) {
		require.NoError(t, Validate(Bytes("MOS.bin", MOS, mosImage(MosFlashSize))))
	})
	t.Run("vdp larger than the mos flash", func(t *testing.T) {
		require.NoError(t, Validate(Bytes("firmware.bin", VDP, vdpImage(MosFlashSize*4))))
	})
	t.Run("vdp beyond 24 bit length", func(t *testing.T) {
		src := &oversized{Reader: bytes.NewReader(vdpImage(0x100)), size: VdpMaxSize + 1}
		err := Validate(NewImage("firmware.bin", VDP, src))
		var sizeErr *ImageTooLargeError
		require.True(t, errors.As(err, &sizeErr))
		require.Equal(t, int64(VdpMaxSize), sizeErr.Limit)
		require.Equal(t, "\"firmware.bin\" too large, at most 16777215 bytes accepted (16777216 bytes)", err.Error())

		src.size = VdpMaxSize
		require.NoError(t, Validate(NewImage("firmware.bin", VDP, src)))
	})
	t.Run("short file", func(t *testing.T) {
		require.Error(t, Validate(Bytes("firmware.bin", VDP, vdpImage(0x10))))
	})
}

// oversized reports a length larger than the bytes it holds.
type oversized struct {
	*bytes.Reader
	size int64
}

func (o *oversized) Size() int64 { return o.size }

type failingReader struct {
	data  []byte
	after int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after == 0 {
		return 0, errors.New("card removed")
	}
	n := copy(p, r.data[:r.after])
	r.data = r.data[n:]
	r.after -= n
	return n, nil
}

func TestLoad(t *testing.T) {
	data := mosImage(40000)
	region := make([]byte, MosFlashSize)

	var chunks []int
	n, crc, err := Load(bytes.NewReader(data), region, DefaultBlockSize, func(c int) { chunks = append(chunks, c) })
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, checksum.Of(data), crc)
	require.Equal(t, data, region[:n])
	require.Equal(t, []int{16384, 16384, 7232}, chunks)

	t.Run("read error", func(t *testing.T) {
		_, _, err := Load(&failingReader{data: data, after: 20000}, make([]byte, MosFlashSize), 1024, nil)
		var readErr *SourceUnreadableError
		require.True(t, errors.As(err, &readErr))
		require.Equal(t, int64(20000), readErr.Offset)
	})

	t.Run("does not fit", func(t *testing.T) {
		_, _, err := Load(bytes.NewReader(data), make([]byte, 1000), 256, nil)
		var sizeErr *ImageTooLargeError
		require.True(t, errors.As(err, &sizeErr))
	})

	t.Run("exactly fills the region", func(t *testing.T) {
		n, crc, err := Load(bytes.NewReader(data[:1024]), make([]byte, 1024), 100, nil)
		require.NoError(t, err)
		require.Equal(t, 1024, n)
		require.Equal(t, checksum.Of(data[:1024]), crc)
	})

	t.Run("empty source", func(t *testing.T) {
		n, crc, err := Load(bytes.NewReader(nil), region, DefaultBlockSize, nil)
		require.NoError(t, err)
		require.Zero(t, n)
		require.Equal(t, checksum.Of(nil), crc)
	})
}

func TestStageAndChecksum(t *testing.T) {
	data := mosImage(5000)
	img := Bytes("MOS.bin", MOS, data)

	crc, err := ComputeChecksum(img, 1024, nil)
	require.NoError(t, err)
	require.Equal(t, checksum.Of(data), crc)
	require.Equal(t, crc, img.Checksum)

	// a second full read must see the same bytes
	region := make([]byte, MosFlashSize)
	n, staged, err := Stage(img, region, 1024, nil)
	require.NoError(t, err)
	require.Equal(t, 5000, n)
	require.Equal(t, crc, staged)
}

func TestOpen(t *testing.T) {
	dir, err := paths.MkTempDir("", "fwtest")
	require.NoError(t, err)
	defer dir.RemoveAll()

	t.Run("binary", func(t *testing.T) {
		bin := dir.Join("MOS.bin")
		data := mosImage(3000)
		require.NoError(t, bin.WriteFile(data))
		img, err := Open(bin, MOS)
		require.NoError(t, err)
		defer img.Close()
		require.Equal(t, "MOS.bin", img.Name)
		require.Equal(t, int64(3000), img.Size())
		require.NoError(t, Validate(img))
		crc, err := ComputeChecksum(img, DefaultBlockSize, nil)
		require.NoError(t, err)
		require.Equal(t, checksum.Of(data), crc)
	})

	t.Run("intel hex", func(t *testing.T) {
		hex := dir.Join("MOS.hex")
		require.NoError(t, hex.WriteFile([]byte(":05000000F3ED7D5BC380\n:01000800AA4D\n:00000001FF\n")))
		img, err := Open(hex, MOS)
		require.NoError(t, err)
		defer img.Close()
		require.Equal(t, int64(9), img.Size())
		header, err := img.Header(16)
		require.NoError(t, err)
		require.Equal(t, []byte{0xF3, 0xED, 0x7D, 0x5B, 0xC3, 0xFF, 0xFF, 0xFF, 0xAA}, header)
		require.NoError(t, Validate(img))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Open(dir.Join("nope.bin"), VDP)
		require.Error(t, err)
	})
}
