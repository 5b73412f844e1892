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

// Package config holds the runner's command-line surface.
//
// Flags are registered with RegisterFlags and turned into a Config with
// NewFromFlags. An optional TOML file supplies defaults; explicitly set
// flags override it. Arguments left over after the last flag are kept as
// the test-args vector for the hosted tests.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"lemu.dev/lemu/pkg/safecall"
	"lemu.dev/lemu/pkg/trace"
)

// Config is the runner configuration as resolved from the defaults file and
// the command line.
type Config struct {
	// StopAt is when to stop automatically, in simulated seconds.
	// Negative means never.
	StopAt float64

	// PIDFile is where to save the host process id; empty means nowhere.
	PIDFile string

	// File is the TOML defaults file the configuration was loaded from,
	// if any.
	File string

	// Verbose enables the debug trace channel.
	Verbose bool

	rawArgs  []string
	testArgs []string
}

// TestArgs returns the extra arguments for the hosted tests: everything
// left on the command line after the last flag.
func (c *Config) TestArgs() []string {
	return c.testArgs
}

// CmdLineArgs returns the raw command line the runner was started with.
func (c *Config) CmdLineArgs() []string {
	return c.rawArgs
}

// fileOptions is the shape of the TOML defaults file. All fields are
// optional; absent fields leave the built-in default in place.
type fileOptions struct {
	StopAt  *float64 `toml:"stop-at"`
	PIDFile *string  `toml:"pid-file"`
	Verbose *bool    `toml:"verbose"`
	Color   *string  `toml:"color"`
}

func loadFile(c *Config, path string) error {
	var opts fileOptions
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if opts.StopAt != nil {
		c.StopAt = *opts.StopAt
	}
	if opts.PIDFile != nil {
		c.PIDFile = *opts.PIDFile
	}
	if opts.Verbose != nil {
		c.Verbose = *opts.Verbose
	}
	if opts.Color != nil {
		switch *opts.Color {
		case "auto":
			trace.EnableColor()
		case "never":
			trace.DisableColor()
		case "always":
			trace.ForceColor()
		default:
			return fmt.Errorf("config file %s: color must be auto, never or always, got %q", path, *opts.Color)
		}
	}
	return nil
}

// pidLock holds the PID file lock for the lifetime of the process.
var pidLock *flock.Flock

// storePID locks the PID file and writes the host PID to it as a decimal
// string. Two runners can therefore not share a PID file. A stale lock
// from a just-killed runner is released asynchronously by the host kernel,
// so acquisition retries briefly before giving up.
func storePID(path string) {
	lk := flock.New(path)
	acquire := func() error {
		ok, err := lk.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return fmt.Errorf("pid file %s is locked by another runner", path)
		}
		return nil
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 20)
	if err := backoff.Retry(acquire, bo); err != nil {
		trace.Fatalf("Could not lock pid file %s: %v", path, err)
	}
	pidLock = lk

	if err := os.WriteFile(path, []byte(strconv.Itoa(unix.Getpid())), 0644); err != nil {
		trace.Fatalf("Could not open file %s for writing: %v", path, err)
	}
}

// current is the process-wide configuration, set by NewFromFlags. Kept so
// the hosted-OS compatibility accessors need no handle.
var current *Config

// Current returns the process-wide configuration, or nil before parsing.
func Current() *Config {
	return current
}

// Cleanup releases the command-line state (the PID file lock). Called on
// the exit path.
func Cleanup() {
	if lk := pidLock; lk != nil {
		pidLock = nil
		safecall.Check(lk.Unlock(), "unlock pid file")
	}
	current = nil
}
