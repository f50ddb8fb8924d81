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

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arduino/agon-fwuploader/cli/feedback"
	"github.com/arduino/agon-fwuploader/cli/firmware"
	"github.com/arduino/agon-fwuploader/cli/globals"
	"github.com/arduino/agon-fwuploader/cli/version"
	"github.com/arduino/agon-fwuploader/config"
	v "github.com/arduino/agon-fwuploader/version"
	"github.com/arduino/go-paths-helper"
	"github.com/mattn/go-colorable"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	outputFormat string
	logFile      string
	logFormat    string
	configFile   string
)

// NewCommand creates the root command
func NewCommand() *cobra.Command {
	// agon-fwuploader is the root command
	uploaderCli := &cobra.Command{
		Use:              "agon-fwuploader",
		Short:            "agon-fwuploader.",
		Long:             "agon-fwuploader updates the MOS and VDP firmware of Agon computers.",
		Example:          "  " + os.Args[0] + " <command> [flags...]",
		Args:             cobra.NoArgs,
		PersistentPreRun: preRun,
	}

	uploaderCli.AddCommand(version.NewCommand())
	uploaderCli.AddCommand(firmware.NewFlashCommand())
	uploaderCli.AddCommand(firmware.NewCrcCommand())
	uploaderCli.AddCommand(firmware.NewProbeCommand())

	uploaderCli.PersistentFlags().StringVar(&outputFormat, "format", "text", "The output format, can be {text|json}.")
	uploaderCli.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (default $HOME/"+config.FileName+")")

	uploaderCli.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to the file where logs will be written")
	uploaderCli.PersistentFlags().StringVar(&logFormat, "log-format", "", "The output format for the logs, can be {text|json}.")
	uploaderCli.PersistentFlags().StringVar(&globals.LogLevel, "log-level", "info", "Messages with this level and above will be logged. Valid levels are: trace, debug, info, warn, error, fatal, panic")
	uploaderCli.PersistentFlags().BoolVarP(&globals.Verbose, "verbose", "v", false, "Print the logs on the standard output.")

	return uploaderCli
}

// NormalizeArgs rewrites the legacy "-force" switch to the "force" command
// word, cobra would otherwise split it into shorthand flags.
func NormalizeArgs(args []string) []string {
	res := make([]string, len(args))
	for i, arg := range args {
		if arg == "-force" {
			arg = "force"
		}
		res[i] = arg
	}
	return res
}

// Convert the string passed to the `--log-level` option to the corresponding
// logrus formal level.
func toLogLevel(s string) (t logrus.Level, found bool) {
	t, found = map[string]logrus.Level{
		"trace": logrus.TraceLevel,
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}[s]

	return
}

func preRun(cmd *cobra.Command, args []string) {
	// Prepare logging
	if globals.Verbose {
		// if we print on stdout, do it in full colors
		logrus.SetOutput(colorable.NewColorableStdout())
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors: true,
		})
	} else {
		logrus.SetOutput(io.Discard)
	}

	// Normalize the format strings
	logFormat = strings.ToLower(logFormat)
	if logFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			fmt.Printf("Unable to open file for logging: %s", logFile)
			os.Exit(int(feedback.ErrBadArgument))
		}

		// Use a hook so we don't get color codes in the log file
		if logFormat == "json" {
			logrus.AddHook(lfshook.NewHook(file, &logrus.JSONFormatter{}))
		} else {
			logrus.AddHook(lfshook.NewHook(file, &logrus.TextFormatter{}))
		}
	}

	// Configure logging filter
	if lvl, found := toLogLevel(globals.LogLevel); !found {
		feedback.Fatal(fmt.Sprintf("Invalid option for --log-level: %s", globals.LogLevel), feedback.ErrBadArgument)
	} else {
		logrus.SetLevel(lvl)
	}

	//
	// Prepare the Feedback system
	//

	// normalize the format strings
	outputFormat = strings.ToLower(outputFormat)
	// check the right output format was passed
	format, found := feedback.ParseOutputFormat(outputFormat)
	if !found {
		feedback.Fatal(fmt.Sprintf("Invalid output format: %s", outputFormat), feedback.ErrBadArgument)
	}

	// use the output format to configure the Feedback
	feedback.SetFormat(format)

	logrus.Info(v.VersionInfo)

	// Load the configuration
	var configPath *paths.Path
	if configFile != "" {
		configPath = paths.New(configFile)
		if !configPath.Exist() {
			feedback.Fatal(fmt.Sprintf("Configuration file not found: %s", configPath), feedback.ErrFileNotFound)
		}
	} else if p, err := config.DefaultPath(); err == nil {
		configPath = p
	} else {
		logrus.Warnf("cannot locate home directory: %s", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		feedback.Fatal(err.Error(), feedback.ErrBadArgument)
	}
	globals.Config = cfg

	if outputFormat != "text" {
		cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
			logrus.Warn("Calling help on JSON format")
			feedback.Fatal("Invalid Call : should show Help, but it is available only in TEXT mode.", feedback.ErrBadArgument)
		})
	}
}
