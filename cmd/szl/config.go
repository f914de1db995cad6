// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// applyConfigDefaults pre-scans args for --config before flag.Parse
// runs, and if present, layers the YAML file's keys in as flag
// defaults. Any flag also given explicitly on the command line still
// wins, since flag.Parse runs afterward and overwrites whatever a
// default set here.
func applyConfigDefaults(args []string) {
	path := scanConfigPath(args)
	if path == "" {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		exitf("szl: --config: %s\n", err)
	}
	var defaults map[string]interface{}
	if err := yaml.Unmarshal(b, &defaults); err != nil {
		exitf("szl: --config: %s\n", err)
	}
	for name, v := range defaults {
		if explicitlySet(args, name) {
			continue
		}
		f := flag.Lookup(name)
		if f == nil {
			exitf("szl: --config: unknown flag %q\n", name)
		}
		if err := f.Value.Set(fmt.Sprint(v)); err != nil {
			exitf("szl: --config: flag %q: %s\n", name, err)
		}
	}
}

func scanConfigPath(args []string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func explicitlySet(args []string, name string) bool {
	for _, a := range args {
		if a == "-"+name || a == "--"+name ||
			strings.HasPrefix(a, "-"+name+"=") || strings.HasPrefix(a, "--"+name+"=") {
			return true
		}
	}
	return false
}
