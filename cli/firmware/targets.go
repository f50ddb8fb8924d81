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

	"golang.org/x/exp/slices"
)

var commandWords = []string{"all", "mos", "vdp", "batch", "force"}

// targets is the selection made by the flash command words.
type targets struct {
	Mos   string
	Vdp   string
	Batch bool
	Force bool
}

// parseTargets reads the flash command words:
//
//	all | mos [file] | vdp [file] | batch | force
//
// A file name is taken only when the next word is not a command word. Every
// word may appear once, batch implies force and selects both targets.
func parseTargets(args []string, defaultMos, defaultVdp string) (*targets, error) {
	t := &targets{}
	var seen []string
	for i := 0; i < len(args); i++ {
		word := args[i]
		if !slices.Contains(commandWords, word) {
			return nil, fmt.Errorf("unknown command %q", word)
		}
		if slices.Contains(seen, word) {
			return nil, fmt.Errorf("%q given twice", word)
		}
		seen = append(seen, word)

		fileArg := func(def string) string {
			if i+1 < len(args) && !slices.Contains(commandWords, args[i+1]) {
				i++
				return args[i]
			}
			return def
		}
		switch word {
		case "all":
			if t.Mos != "" || t.Vdp != "" {
				return nil, fmt.Errorf("\"all\" cannot be combined with mos or vdp")
			}
			t.Mos, t.Vdp = defaultMos, defaultVdp
		case "mos":
			if t.Mos != "" {
				return nil, fmt.Errorf("MOS firmware selected twice")
			}
			t.Mos = fileArg(defaultMos)
		case "vdp":
			if t.Vdp != "" {
				return nil, fmt.Errorf("VDP firmware selected twice")
			}
			t.Vdp = fileArg(defaultVdp)
		case "batch":
			t.Batch = true
			t.Force = true
			if t.Mos == "" {
				t.Mos = defaultMos
			}
			if t.Vdp == "" {
				t.Vdp = defaultVdp
			}
		case "force":
			t.Force = true
		}
	}
	if t.Mos == "" && t.Vdp == "" {
		return nil, fmt.Errorf("no firmware selected")
	}
	return t, nil
}
