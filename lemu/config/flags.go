// Copyright 2023 The Lemu Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"flag"
	"fmt"

	"lemu.dev/lemu/pkg/trace"
)

// RegisterFlags registers the flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.Float64("stop-at", -1, "in simulated seconds, when to stop automatically.")
	flagSet.String("pid-file", "", "save the host process id in this file.")
	flagSet.String("config", "", "TOML file with option defaults; explicit flags override it.")
	flagSet.Bool("verbose", false, "enable debug traces.")

	// Tracing flags.
	flagSet.Bool("color", false, "(default) enable color in traces if printing to console.")
	flagSet.Bool("no-color", false, "disable color in traces even if printing to console.")
	flagSet.Bool("force-color", false, "enable color in traces even if printing to files/pipes.")

	flagSet.Bool("version", false, "show version and exit.")
}

func boolFlag(flagSet *flag.FlagSet, name string) bool {
	return flagSet.Lookup(name).Value.(flag.Getter).Get().(bool)
}

func float64Flag(flagSet *flag.FlagSet, name string) float64 {
	return flagSet.Lookup(name).Value.(flag.Getter).Get().(float64)
}

func stringFlag(flagSet *flag.FlagSet, name string) string {
	return flagSet.Lookup(name).Value.(flag.Getter).Get().(string)
}

// NewFromFlags builds a Config from an already-parsed flag set.
//
// rawArgs is the full command line for the CmdLineArgs accessor; whatever
// flagSet left unconsumed becomes the test-args vector. Validation errors
// are returned for the caller to surface.
func NewFromFlags(flagSet *flag.FlagSet, rawArgs []string) (*Config, error) {
	c := &Config{
		StopAt:   -1,
		rawArgs:  rawArgs,
		testArgs: flagSet.Args(),
	}

	// File defaults first, then the explicitly set flags on top.
	if path := stringFlag(flagSet, "config"); path != "" {
		c.File = path
		if err := loadFile(c, path); err != nil {
			return nil, err
		}
	}

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["stop-at"] {
		c.StopAt = float64Flag(flagSet, "stop-at")
		if c.StopAt < 0 {
			return nil, fmt.Errorf("stop-at must not be negative")
		}
	}
	if set["pid-file"] {
		c.PIDFile = stringFlag(flagSet, "pid-file")
	}
	if set["verbose"] {
		c.Verbose = boolFlag(flagSet, "verbose")
	}

	// Color pinning: force wins over disable wins over the auto default.
	if boolFlag(flagSet, "color") {
		trace.EnableColor()
	}
	if boolFlag(flagSet, "no-color") {
		trace.DisableColor()
	}
	if boolFlag(flagSet, "force-color") {
		trace.ForceColor()
	}

	if c.PIDFile != "" {
		storePID(c.PIDFile)
	}

	current = c
	return c, nil
}
