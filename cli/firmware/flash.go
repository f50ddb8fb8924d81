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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/arduino/agon-fwuploader/cli/arguments"
	"github.com/arduino/agon-fwuploader/cli/common"
	"github.com/arduino/agon-fwuploader/cli/feedback"
	"github.com/arduino/agon-fwuploader/cli/globals"
	"github.com/arduino/agon-fwuploader/flasher"
	"github.com/arduino/agon-fwuploader/updater"
	v "github.com/arduino/agon-fwuploader/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	commonFlags arguments.Flags // contains port, baudrate and flash image
	batch       bool
)

// NewFlashCommand creates a new `flash` command
func NewFlashCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "flash [all | mos [file] | vdp [file] | batch | force]",
		Short: "Flashes MOS and VDP firmware.",
		Long: "Flashes the MOS firmware to the eZ80 flash and the VDP firmware to the ESP32. " +
			"File names default to MOS.bin and firmware.bin.",
		Example: "" +
			"  " + os.Args[0] + " flash all -p /dev/ttyUSB0\n" +
			"  " + os.Args[0] + " flash mos MOS-2.1.bin --flash-image agon.rom\n" +
			"  " + os.Args[0] + " flash vdp firmware.bin -p COM10 -f\n" +
			"  " + os.Args[0] + " flash batch -p /dev/ttyUSB0\n",
		Args: cobra.MinimumNArgs(1),
		Run:  runFlash,
	}
	commonFlags.AddToCommand(command)
	command.Flags().BoolVar(&batch, "batch", false, "Unattended update, same as the batch command word")
	return command
}

func runFlash(cmd *cobra.Command, args []string) {
	cfg := globals.Config
	commonFlags.Resolve()
	if batch {
		args = append(args, "batch")
	}
	t, err := parseTargets(args, cfg.MosFirmware, cfg.VdpFirmware)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Invalid flash command: %s\n%s", err, cmd.UseLine()), feedback.ErrBadArgument)
	}
	logrus.Debugf("MOS firmware: %q, VDP firmware: %q, batch: %t", t.Mos, t.Vdp, t.Batch)

	mosImg, vdpImg := common.OpenImages(t.Mos, t.Vdp)
	defer common.CloseImages(mosImg, vdpImg)

	// in JSON mode stdout only carries the result
	var out, promptOut io.Writer = os.Stdout, os.Stdout
	if feedback.GetFormat() == feedback.JSON {
		out = new(bytes.Buffer)
		promptOut = os.Stderr
	}
	session := &updater.Session{
		Prompter:  common.NewTerminalPrompter(os.Stdin, promptOut),
		Out:       out,
		Force:     t.Force || commonFlags.Force,
		Batch:     t.Batch,
		BlockSize: cfg.StagingBlockSize,
	}

	if mosImg != nil {
		emu := common.OpenFlash(&commonFlags)
		emu.EraseLatency = cfg.EraseLatency
		mos := flasher.NewMosFlasher(emu, emu,
			flasher.WithStagingBlockSize(cfg.StagingBlockSize),
			flasher.WithEraseWait(func() { time.Sleep(cfg.ErasePollInterval) }))
		mos.SetProgressCallback(logProgress("MOS"))
		session.Mos = mos
		session.Resetter = emu
		session.Persister = emu
	}
	if vdpImg != nil {
		link := common.OpenLink(&commonFlags)
		defer link.Close()
		vdp := flasher.NewVdpFlasher(link,
			flasher.WithProbeInterval(cfg.ProbeInterval),
			flasher.WithPollLimit(cfg.PollLimit))
		vdp.SetProgressCallback(logProgress("VDP"))
		session.Vdp = vdp
		session.Console = link
	}

	// Ctrl-C stops the waits for the VDP, flash attempts always complete
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintln(out, v.VersionInfo.Banner())
	fmt.Fprintln(out)
	res, err := session.Run(ctx, mosImg, vdpImg)
	feedback.PrintResult(res)
	if code := common.ExitCodeFor(err); code != feedback.Success {
		feedback.Fatal(fmt.Sprintf("Error during firmware flashing: %s", err), code)
	}
	logrus.Info("Operation completed: success! :-)")
}

// logProgress is the progress callback of target
func logProgress(target string) func(int) {
	return func(progress int) {
		logrus.Debugf("%s flashing progress: %d%%", target, progress)
	}
}
