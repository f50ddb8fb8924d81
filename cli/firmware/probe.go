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
	"context"
	"fmt"
	"os"

	"github.com/arduino/agon-fwuploader/cli/common"
	"github.com/arduino/agon-fwuploader/cli/feedback"
	"github.com/arduino/agon-fwuploader/cli/globals"
	"github.com/arduino/agon-fwuploader/flasher"
	"github.com/spf13/cobra"
)

// NewProbeCommand creates a new `probe` command
func NewProbeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "probe",
		Short: "Checks that the VDP is running.",
		Long:  "Sends a general poll to the VDP and shows the screen mode it reports.",
		Example: "" +
			"  " + os.Args[0] + " probe -p /dev/ttyUSB0\n" +
			"  " + os.Args[0] + " probe -p COM10 --format json\n",
		Args: cobra.NoArgs,
		Run:  runProbe,
	}
	commonFlags.AddToCommand(command)
	return command
}

func runProbe(cmd *cobra.Command, args []string) {
	commonFlags.Resolve()
	link := common.OpenLink(&commonFlags)
	defer link.Close()

	f := flasher.NewVdpFlasher(link,
		flasher.WithProbeInterval(globals.Config.ProbeInterval),
		flasher.WithPollLimit(globals.Config.PollLimit))
	status, err := f.Status(context.Background())
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Couldn't probe the VDP: %s", err), feedback.ErrGeneric)
	}
	feedback.PrintResult(probeResult{status})
	if !status.Responding {
		os.Exit(int(feedback.ErrGeneric))
	}
}

type probeResult struct {
	*flasher.VdpStatus
}

func (r probeResult) Data() interface{} {
	return r.VdpStatus
}

func (r probeResult) String() string {
	if !r.Responding {
		return "VDP is not responding"
	}
	return fmt.Sprintf("VDP is responding, screen %dx%d", r.Width, r.Height)
}
