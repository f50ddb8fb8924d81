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

package common

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arduino/agon-fwuploader/cli/arguments"
	"github.com/arduino/agon-fwuploader/cli/feedback"
	"github.com/arduino/agon-fwuploader/ez80"
	"github.com/arduino/agon-fwuploader/firmware"
	"github.com/arduino/agon-fwuploader/updater"
	"github.com/arduino/agon-fwuploader/vdp"
	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
)

// OpenImages opens every non empty file name, reporting all the files that
// cannot be opened before exiting.
func OpenImages(mosFile, vdpFile string) (mosImg, vdpImg *firmware.Image) {
	failed := false
	open := func(file string, k firmware.Kind) *firmware.Image {
		if file == "" {
			return nil
		}
		img, err := firmware.Open(paths.New(file), k)
		if err != nil {
			logrus.Error(err)
			fmt.Fprintf(os.Stderr, "Error opening %s firmware \"%s\"\n", k, file)
			failed = true
			return nil
		}
		return img
	}
	mosImg = open(mosFile, firmware.MOS)
	vdpImg = open(vdpFile, firmware.VDP)
	if failed {
		CloseImages(mosImg, vdpImg)
		os.Exit(int(feedback.ErrFileNotFound))
	}
	return mosImg, vdpImg
}

// CloseImages closes the non nil images.
func CloseImages(images ...*firmware.Image) {
	for _, img := range images {
		if img != nil {
			img.Close()
		}
	}
}

// OpenFlash opens the emulated eZ80 flash backed by the ROM image of flags.
func OpenFlash(flags *arguments.Flags) *ez80.Emulator {
	if flags.FlashImage == "" {
		feedback.Fatal("Error during firmware flashing: missing flash image", feedback.ErrBadArgument)
	}
	emu, err := ez80.OpenEmulator(ez80.F92, paths.New(flags.FlashImage))
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error opening flash image: %s", err), feedback.ErrGeneric)
	}
	return emu
}

// OpenLink connects to the VDP on the port of flags.
func OpenLink(flags *arguments.Flags) *vdp.Link {
	if flags.Port == "" {
		feedback.Fatal("Error during firmware flashing: missing VDP port", feedback.ErrBadArgument)
	}
	link, err := vdp.OpenLink(flags.Port, flags.BaudRate)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error opening VDP port %s: %s", flags.Port, err), feedback.ErrGeneric)
	}
	logrus.Debugf("port: %s, baudrate: %d", flags.Port, flags.BaudRate)
	return link
}

// ExitCodeFor maps an update failure to the process exit code.
func ExitCodeFor(err error) feedback.ExitCode {
	var wrongKind *firmware.WrongImageKindError
	var tooLarge *firmware.ImageTooLargeError
	switch {
	case err == nil, errors.Is(err, updater.ErrUserAbort):
		return feedback.Success
	case updater.RecoveryRequired(err):
		return feedback.ErrRecoveryRequired
	case errors.As(err, &wrongKind), errors.As(err, &tooLarge):
		return feedback.ErrBadArgument
	default:
		return feedback.ErrGeneric
	}
}

// TerminalPrompter asks the operator through a terminal.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter reads answers from in and writes questions to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Confirm implements updater.Prompter. Anything but y or n is ignored.
func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	fmt.Fprint(p.out, question)
	for {
		b, err := p.in.ReadByte()
		if err != nil {
			fmt.Fprintln(p.out)
			return false, err
		}
		switch strings.ToLower(string(b)) {
		case "y":
			fmt.Fprintln(p.out)
			return true, nil
		case "n":
			fmt.Fprintln(p.out)
			return false, nil
		}
	}
}

// AwaitEscape implements updater.Prompter.
func (p *TerminalPrompter) AwaitEscape(message string) error {
	fmt.Fprint(p.out, message)
	defer fmt.Fprintln(p.out)
	for {
		b, err := p.in.ReadByte()
		if err != nil {
			return err
		}
		if b == 0x1B {
			return nil
		}
	}
}
