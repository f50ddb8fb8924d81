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

package flasher

import (
	"fmt"
)

// FlasherError is a protocol level failure.
type FlasherError struct {
	err string
}

func (e FlasherError) Error() string {
	return e.err
}

// StagingChecksumError is returned when the image read into the staging
// region does not match the checksum of the earlier read. Flash is not
// touched.
type StagingChecksumError struct {
	Name     string
	Expected uint32
	Actual   uint32
}

func (e *StagingChecksumError) Error() string {
	return fmt.Sprintf("error reading %s to memory: crc 0x%08X, expected 0x%08X", e.Name, e.Actual, e.Expected)
}

// VerifyMismatchError reports a flash read-back that does not match the
// image. It is retried until the attempts run out.
type VerifyMismatchError struct {
	Attempt  int
	Expected uint32
	Actual   uint32
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("flash verify failed on attempt %d: crc 0x%08X, expected 0x%08X", e.Attempt, e.Actual, e.Expected)
}

// RetriesExhaustedError means every attempt failed to verify. The flash
// holds no usable firmware and the device has to be recovered externally.
type RetriesExhaustedError struct {
	Attempts int
	Last     *VerifyMismatchError
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("multiple errors occured during flash write (%d attempts): bare-metal recovery required", e.Attempts)
}

func (e *RetriesExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// UnlockFailedError means the running VDP firmware did not acknowledge the
// unlock command, so it has no OTA support. Retrying cannot help.
type UnlockFailedError struct {
	Response string
}

func (e *UnlockFailedError) Error() string {
	return fmt.Sprintf("OTA not present in current VDP (unlock response %q)", e.Response)
}
