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

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionInfo(t *testing.T) {
	require.Equal(t, "agon-fwuploader", VersionInfo.Application)
	require.Equal(t, "0.0.0-git", VersionInfo.VersionString)
	require.Equal(t, "Agon firmware update utility v0.0.0-git", VersionInfo.Banner())

	i := newInfo("agon-fwuploader", "1.9")
	require.Equal(t, "Agon firmware update utility v1.9", i.Banner())
	require.True(t, i.Version.LessThan(newInfo("x", "1.10").Version))
}
