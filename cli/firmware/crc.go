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
	"os"
	"strings"

	"github.com/arduino/agon-fwuploader/cli/feedback"
	"github.com/arduino/agon-fwuploader/cli/globals"
	fw "github.com/arduino/agon-fwuploader/firmware"
	"github.com/arduino/go-paths-helper"
	"github.com/spf13/cobra"
)

// NewCrcCommand creates a new `crc` command
func NewCrcCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crc <file>...",
		Short: "Shows the CRC32 of firmware files.",
		Long:  "Shows the CRC32 of firmware files, as checked after flashing.",
		Example: "" +
			"  " + os.Args[0] + " crc MOS.bin firmware.bin\n" +
			"  " + os.Args[0] + " crc --format json MOS.hex\n",
		Args: cobra.MinimumNArgs(1),
		Run:  runCrc,
	}
}

func runCrc(cmd *cobra.Command, args []string) {
	res := crcResult{}
	for _, file := range args {
		img, err := fw.Open(paths.New(file), fw.MOS)
		if err != nil {
			feedback.Fatal(fmt.Sprintf("Error opening \"%s\": %s", file, err), feedback.ErrFileNotFound)
		}
		crc, err := fw.ComputeChecksum(img, globals.Config.StagingBlockSize, nil)
		size := img.Size()
		img.Close()
		if err != nil {
			feedback.Fatal(fmt.Sprintf("Error reading \"%s\": %s", file, err), feedback.ErrGeneric)
		}
		res = append(res, &fileCRC{File: file, Size: size, CRC: fmt.Sprintf("0x%08X", crc)})
	}
	feedback.PrintResult(res)
}

type fileCRC struct {
	File string `json:"file"`
	Size int64  `json:"size"`
	CRC  string `json:"crc"`
}

type crcResult []*fileCRC

func (r crcResult) Data() interface{} {
	return r
}

func (r crcResult) String() string {
	lines := make([]string, 0, len(r))
	for _, f := range r {
		lines = append(lines, fmt.Sprintf("%s  %s (%d bytes)", f.CRC, f.File, f.Size))
	}
	return strings.Join(lines, "\n")
}
