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
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
	"lemu.dev/lemu/pkg/trace"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	flagSet := flag.NewFlagSet("lemu-test", flag.ContinueOnError)
	RegisterFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return NewFromFlags(flagSet, args)
}

func TestDefaults(t *testing.T) {
	defer Cleanup()
	c, err := parse(t)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if c.StopAt >= 0 {
		t.Errorf("default StopAt = %v, want negative (run forever)", c.StopAt)
	}
	if c.PIDFile != "" {
		t.Errorf("default PIDFile = %q, want empty", c.PIDFile)
	}
	if len(c.TestArgs()) != 0 {
		t.Errorf("default TestArgs = %v, want none", c.TestArgs())
	}
}

func TestStopAtAndTestArgs(t *testing.T) {
	defer Cleanup()
	args := []string{"--stop-at", "3.5", "extra1", "extra2"}
	c, err := parse(t, args...)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if c.StopAt != 3.5 {
		t.Errorf("StopAt = %v, want 3.5", c.StopAt)
	}
	if diff := cmp.Diff([]string{"extra1", "extra2"}, c.TestArgs()); diff != "" {
		t.Errorf("TestArgs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(args, c.CmdLineArgs()); diff != "" {
		t.Errorf("CmdLineArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestStopAtNegative(t *testing.T) {
	defer Cleanup()
	if _, err := parse(t, "--stop-at", "-2"); err == nil {
		t.Fatal("negative stop-at accepted")
	}
}

func TestPIDFile(t *testing.T) {
	defer Cleanup()
	path := filepath.Join(t.TempDir(), "runner.pid")
	if _, err := parse(t, "--pid-file", path); err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading pid file: %v", err)
	}
	// A single ASCII decimal, no newline required.
	if got, want := string(b), strconv.Itoa(os.Getpid()); got != want {
		t.Errorf("pid file content = %q, want %q", got, want)
	}
}

func TestPIDFileLocked(t *testing.T) {
	defer Cleanup()
	path := filepath.Join(t.TempDir(), "runner.pid")

	other := flock.New(path)
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-locking pid file: ok=%v err=%v", ok, err)
	}
	defer other.Unlock()

	type exitCall struct{ code int }
	prev := trace.SetExitFunc(func(c int) { panic(exitCall{c}) })
	defer trace.SetExitFunc(prev)

	exited := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				exited = r.(exitCall).code == 1
			}
		}()
		parse(t, "--pid-file", path)
	}()
	if !exited {
		t.Fatal("a locked pid file did not abort the runner")
	}
}

func TestTOMLDefaults(t *testing.T) {
	defer Cleanup()
	defer trace.EnableColor()

	path := filepath.Join(t.TempDir(), "lemu.toml")
	contents := "stop-at = 2.5\nverbose = true\ncolor = \"never\"\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	c, err := parse(t, "--config", path)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if c.StopAt != 2.5 {
		t.Errorf("StopAt = %v, want 2.5 from the file", c.StopAt)
	}
	if !c.Verbose {
		t.Error("Verbose not taken from the file")
	}
	if got := trace.OverTTY(trace.Stdout); got != trace.TTYNo {
		t.Errorf("stdout tty state = %v, want pinned TTYNo", got)
	}

	// Explicit flags override the file.
	c, err = parse(t, "--config", path, "--stop-at", "1")
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if c.StopAt != 1 {
		t.Errorf("StopAt = %v, want the flag value 1", c.StopAt)
	}
}

func TestTOMLBadColor(t *testing.T) {
	defer Cleanup()
	path := filepath.Join(t.TempDir(), "lemu.toml")
	if err := os.WriteFile(path, []byte("color = \"sometimes\"\n"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	if _, err := parse(t, "--config", path); err == nil {
		t.Fatal("bad color value accepted")
	}
}

func TestColorFlags(t *testing.T) {
	defer Cleanup()
	defer trace.EnableColor()

	if _, err := parse(t, "--no-color"); err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if got := trace.OverTTY(trace.Stderr); got != trace.TTYNo {
		t.Errorf("after --no-color, stderr state = %v, want TTYNo", got)
	}

	if _, err := parse(t, "--force-color"); err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if got := trace.OverTTY(trace.Stderr); got != trace.TTYYes {
		t.Errorf("after --force-color, stderr state = %v, want TTYYes", got)
	}
}

func TestCompatAccessors(t *testing.T) {
	defer Cleanup()
	c, err := parse(t, "alpha", "beta")
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if diff := cmp.Diff(c.TestArgs(), NativeGetTestCmdLineArgs()); diff != "" {
		t.Errorf("NativeGetTestCmdLineArgs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(c.CmdLineArgs(), LerGetCmdLineArgs()); diff != "" {
		t.Errorf("LerGetCmdLineArgs mismatch (-want +got):\n%s", diff)
	}
	Cleanup()
	if NativeGetTestCmdLineArgs() != nil {
		t.Error("accessors still populated after Cleanup")
	}
}
