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

package arguments

import (
	"github.com/arduino/agon-fwuploader/cli/globals"
	"github.com/spf13/cobra"
)

// Flags contains the connection flags.
// This is useful so all flags used by commands that need
// this information are consistent with each other.
type Flags struct {
	Port       string
	BaudRate   int
	FlashImage string
	Force      bool
}

// AddToCommand adds the connection flags to the specified Command
func (f *Flags) AddToCommand(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Port, "port", "p", "", "Serial port of the VDP, e.g.: COM10, /dev/ttyUSB0")
	cmd.Flags().IntVar(&f.BaudRate, "baudrate", 0, "VDP serial baud rate (default from config, 1152000)")
	cmd.Flags().StringVar(&f.FlashImage, "flash-image", "", "ROM image file backing the eZ80 flash")
	cmd.Flags().BoolVarP(&f.Force, "force", "f", false, "Skip the CRC confirmation and the ESC prompt")
}

// Resolve fills the flags left empty with the configuration values.
func (f *Flags) Resolve() {
	cfg := globals.Config
	if f.Port == "" {
		f.Port = cfg.Port
	}
	if f.BaudRate == 0 {
		f.BaudRate = cfg.BaudRate
	}
	if f.FlashImage == "" {
		f.FlashImage = cfg.FlashImage
	}
}
