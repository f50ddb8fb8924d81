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

package checksum

import (
	"bytes"
	"hash/crc32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferenceValues(t *testing.T) {
	// Check value of the CRC-32 catalogue entry.
	require.Equal(t, uint32(0xCBF43926), Of([]byte("123456789")))
	require.Equal(t, uint32(0x00000000), Of(nil))
	require.Equal(t, uint32(0x414FA339), Of([]byte("The quick brown fox jumps over the lazy dog")))
}

func TestMatchesStdlib(t *testing.T) {
	data := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(data)
	require.Equal(t, crc32.ChecksumIEEE(data), Of(data))
}

func TestChunkBoundariesDoNotMatter(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	data := make([]byte, 3000)
	rnd.Read(data)
	want := Of(data)

	for i := 0; i < 200; i++ {
		acc := Init()
		rest := data
		for len(rest) > 0 {
			n := rnd.Intn(len(rest) + 1)
			acc = acc.Feed(rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, want, acc.Finalize())
	}

	t.Run("zero length feeds", func(t *testing.T) {
		acc := Init().Feed(nil).Feed(data[:10]).Feed([]byte{}).Feed(data[10:])
		require.Equal(t, want, acc.Finalize())
	})
}

func TestFeedIsPure(t *testing.T) {
	a := Init()
	b := a.Feed([]byte("abc"))
	require.Equal(t, Init(), a)
	require.NotEqual(t, a, b)
}

func TestWriter(t *testing.T) {
	acc := Init()
	_, err := acc.Write([]byte("1234"))
	require.NoError(t, err)
	_, err = acc.Write([]byte("56789"))
	require.NoError(t, err)
	require.Equal(t, uint32(0xCBF43926), acc.Finalize())
}

func TestFromReader(t *testing.T) {
	data := bytes.Repeat([]byte{0xF3, 0xED, 0x7D}, 10000)
	sum, n, err := FromReader(bytes.NewReader(data), 16384)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)
	require.Equal(t, crc32.ChecksumIEEE(data), sum)
}
