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

package updater

import (
	"errors"
	"fmt"

	"github.com/arduino/agon-fwuploader/firmware"
	"github.com/arduino/agon-fwuploader/flasher"
)

// ErrUserAbort is returned when the operator declines the update.
var ErrUserAbort = errors.New("user abort")

// Stage names the step of an update path that failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StageCRC      Stage = "crc"
	StageStage    Stage = "stage"
	StageProgram  Stage = "program"
	StageStore    Stage = "store"
	StageUnlock   Stage = "unlock"
	StageTransfer Stage = "transfer"
	StageLiveness Stage = "liveness"
)

// UpdateError tags a terminal failure with the firmware and the stage it
// happened in.
type UpdateError struct {
	Target firmware.Kind
	Stage  Stage
	Err    error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Target, e.Stage, e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// RecoveryRequired reports whether err left the MOS flash without a
// verified image.
func RecoveryRequired(err error) bool {
	var exhausted *flasher.RetriesExhaustedError
	return errors.As(err, &exhausted)
}

func mosStage(err error) Stage {
	var staging *flasher.StagingChecksumError
	var unreadable *firmware.SourceUnreadableError
	var tooLarge *firmware.ImageTooLargeError
	switch {
	case errors.As(err, &staging), errors.As(err, &unreadable), errors.As(err, &tooLarge):
		return StageStage
	default:
		return StageProgram
	}
}

func vdpStage(s flasher.HandshakeState) Stage {
	switch s {
	case flasher.Locked, flasher.UnlockRequested, flasher.NotSupported:
		return StageUnlock
	case flasher.Unlocked, flasher.TransferTriggered:
		return StageTransfer
	default:
		return StageLiveness
	}
}
