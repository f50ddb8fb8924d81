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
)

// SourceUnreadableError is returned when a firmware source fails mid-read.
// Bytes already staged must not be trusted.
type SourceUnreadableError struct {
	Name   string
	Offset int64
	Err    error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("error reading \"%s\" at offset %d: %s", e.Name, e.Offset, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error {
	return e.Err
}

// WrongImageKindError is returned when the magic signature does not match
// the target processor.
type WrongImageKindError struct {
	Name string
	Kind Kind
}

func (e *WrongImageKindError) Error() string {
	return fmt.Sprintf("\"%s\" does not contain valid %s", e.Name, e.Kind.Description())
}

// ImageTooLargeError is returned when an image cannot fit its target.
type ImageTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *ImageTooLargeError) Error() string {
	if e.Limit%1024 != 0 {
		return fmt.Sprintf("\"%s\" too large, at most %d bytes accepted (%d bytes)", e.Name, e.Limit, e.Size)
	}
	return fmt.Sprintf("\"%s\" too large for %dKB embedded flash (%d bytes)", e.Name, e.Limit/1024, e.Size)
}
