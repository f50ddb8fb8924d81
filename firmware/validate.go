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
	"github.com/sirupsen/logrus"
)

// Validate checks that img carries the magic signature of its kind and fits
// the target. It never touches the target and leaves img rewound.
func Validate(img *Image) error {
	header, err := img.Header(img.Kind.HeaderSize())
	if err != nil {
		logrus.Error(err)
		return err
	}
	if !LooksLike(header, img.Kind) {
		err := &WrongImageKindError{Name: img.Name, Kind: img.Kind}
		logrus.Error(err)
		return err
	}
	if limit := img.Kind.MaxSize(); limit > 0 && img.Size() > limit {
		err := &ImageTooLargeError{Name: img.Name, Size: img.Size(), Limit: limit}
		logrus.Error(err)
		return err
	}
	logrus.Debugf("%s looks like a %s image", img.Name, img.Kind)
	return nil
}
