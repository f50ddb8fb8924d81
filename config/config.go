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

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the home directory.
const FileName = ".agon-fwuploader.yaml"

// Config holds the settings that flags fall back to.
type Config struct {
	// Port is the serial port of the VDP link.
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudrate"`
	// FlashImage is the ROM image file backing the emulated eZ80 flash.
	FlashImage  string `yaml:"flash_image"`
	MosFirmware string `yaml:"mos_firmware"`
	VdpFirmware string `yaml:"vdp_firmware"`

	StagingBlockSize  int           `yaml:"staging_block_size"`
	EraseLatency      int           `yaml:"erase_latency"`
	ErasePollInterval time.Duration `yaml:"erase_poll_interval"`
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	PollLimit         int           `yaml:"poll_limit"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		BaudRate:         1152000,
		FlashImage:       "agon-flash.rom",
		MosFirmware:      "MOS.bin",
		VdpFirmware:      "firmware.bin",
		StagingBlockSize: 16384,
		ProbeInterval:    150 * time.Millisecond,
	}
}

// DefaultPath returns the configuration file in the user home directory.
func DefaultPath() (*paths.Path, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return paths.New(home, FileName), nil
}

// Load reads the configuration at path over the defaults. A missing file
// gives the defaults.
func Load(path *paths.Path) (*Config, error) {
	cfg := Default()
	if path == nil {
		return cfg, nil
	}
	if !path.Exist() {
		logrus.Debugf("no configuration file at %s, using defaults", path)
		return cfg, nil
	}
	data, err := path.ReadFile()
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		err = fmt.Errorf("invalid configuration %s: %w", path, err)
		logrus.Error(err)
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		err = fmt.Errorf("invalid configuration %s: %w", path, err)
		logrus.Error(err)
		return nil, err
	}
	logrus.Infof("loaded configuration %s", path)
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.BaudRate <= 0:
		return fmt.Errorf("baudrate must be positive")
	case c.StagingBlockSize <= 0:
		return fmt.Errorf("staging_block_size must be positive")
	case c.EraseLatency < 0, c.PollLimit < 0:
		return fmt.Errorf("erase_latency and poll_limit cannot be negative")
	case c.ErasePollInterval < 0, c.ProbeInterval < 0:
		return fmt.Errorf("intervals cannot be negative")
	}
	return nil
}
