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

package vdp

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

// DefaultBaudRate is the speed of the eZ80 <-> ESP32 UART.
const DefaultBaudRate = 1152000

// Baud rates tried, in order, when the requested one cannot be set.
var baudRates = []int{
	DefaultBaudRate,
	384000,
	115200,
}

func openSerial(portAddress string, baudRate int) (serial.Port, error) {
	var lastError error

	for _, rate := range append([]int{baudRate}, baudRates...) {
		port, err := serial.Open(portAddress, &serial.Mode{BaudRate: rate})
		if err != nil {
			lastError = err
			// Try another baudrate
			continue
		}
		logrus.Infof("Opened port %s at %d", portAddress, rate)

		if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
			port.Close()
			err = fmt.Errorf("could not set timeout on serial port: %s", err)
			logrus.Error(err)
			return nil, err
		}

		return port, nil
	}

	return nil, lastError
}

// Link is a Console over a serial connection to the VDP. A background
// reader decodes the VDP packets into the system variables.
type Link struct {
	port   io.ReadWriteCloser
	vars   SysVars
	group  errgroup.Group
	wmu    sync.Mutex
	closed atomic.Bool
}

// OpenLink opens the serial port connected to the VDP.
func OpenLink(portAddress string, baudRate int) (*Link, error) {
	port, err := openSerial(portAddress, baudRate)
	if err != nil {
		logrus.Error(err)
		return nil, err
	}
	return NewLink(port), nil
}

// NewLink starts reading VDP packets from port.
func NewLink(port io.ReadWriteCloser) *Link {
	l := &Link{port: port}
	l.group.Go(l.readLoop)
	return l
}

func (l *Link) readLoop() error {
	var dec Decoder
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n], func(p Packet) {
				logrus.Tracef("VDP packet 0x%02X %X", p.Code, p.Data)
				p.Apply(&l.vars)
			})
		}
		if err != nil {
			if l.closed.Load() {
				return nil
			}
			logrus.Error(err)
			return err
		}
	}
}

// Write sends VDU bytes to the VDP.
func (l *Link) Write(p []byte) (int, error) {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	sent := 0
	for sent < len(p) {
		n, err := l.port.Write(p[sent:])
		if err != nil {
			err = fmt.Errorf("writing data: %s", err)
			logrus.Error(err)
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

// SysVars implements Console.
func (l *Link) SysVars() *SysVars {
	return &l.vars
}

// StartUpdate implements Console. It streams size bytes of src after the
// update header and closes with the 8-bit sum of the image.
func (l *Link) StartUpdate(src io.Reader, size int64) error {
	logrus.Infof("Sending %d bytes of VDP firmware", size)
	if _, err := l.Write(UpdateBegin(size)); err != nil {
		return err
	}
	var sum byte
	buf := make([]byte, 1024)
	var sent int64
	for sent < size {
		chunk := int64(len(buf))
		if size-sent < chunk {
			chunk = size - sent
		}
		n, err := io.ReadFull(src, buf[:chunk])
		if err != nil {
			err = fmt.Errorf("reading VDP firmware at offset %d: %w", sent+int64(n), err)
			logrus.Error(err)
			return err
		}
		for _, b := range buf[:n] {
			sum += b
		}
		if _, err := l.Write(buf[:n]); err != nil {
			return err
		}
		sent += int64(n)
	}
	_, err := l.Write([]byte{sum})
	return err
}

// Close closes the port and waits for the reader to stop.
func (l *Link) Close() error {
	l.closed.Store(true)
	err := l.port.Close()
	if werr := l.group.Wait(); err == nil {
		err = werr
	}
	return err
}
