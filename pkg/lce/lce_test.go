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

package lce

import (
	"testing"

	"lemu.dev/lemu/pkg/trace"
)

// exitCall is thrown by the test exit functions so a "process exit" can be
// observed instead of suffered.
type exitCall struct {
	code int
}

// wantNoExit is an exit function for emulators that must never exit during
// the test.
func wantNoExit(code int) {
	panic(exitCall{code})
}

// catchExit runs fn and reports the exit code it requested, if any.
func catchExit(fn func()) (code int, exited bool) {
	defer func() {
		if r := recover(); r != nil {
			ec, ok := r.(exitCall)
			if !ok {
				panic(r)
			}
			code = ec.code
			exited = true
		}
	}()
	fn()
	return 0, false
}

// catchFatal redirects the tracing sink's exit through a panic for the
// duration of fn, so programming-error diagnostics can be asserted on.
func catchFatal(t *testing.T, fn func()) (code int, exited bool) {
	t.Helper()
	prev := trace.SetExitFunc(func(c int) { panic(exitCall{c}) })
	defer trace.SetExitFunc(prev)
	return catchExit(fn)
}

// TestBootAndHalt boots a CPU whose SW side immediately halts, and checks
// the HW side regains control with the CPU idle. A subsequent wake must run
// the SW continuation up to its next halt.
func TestBootAndHalt(t *testing.T) {
	e := New(wantNoExit)

	if e.IsCPURunning() {
		t.Fatal("CPU running before boot")
	}

	var steps []string
	e.BootCPU(func() {
		steps = append(steps, "boot")
		e.HaltCPU()
		steps = append(steps, "continuation")
		for {
			e.HaltCPU()
		}
	})

	// The rendezvous guarantees the SW side ran up to its halt before
	// BootCPU returned.
	if want := []string{"boot"}; len(steps) != 1 || steps[0] != want[0] {
		t.Errorf("after boot, steps = %v, want %v", steps, want)
	}
	if e.IsCPURunning() {
		t.Error("CPU running after SW halted")
	}

	e.WakeCPU()
	if len(steps) != 2 || steps[1] != "continuation" {
		t.Errorf("after wake, steps = %v, want [boot continuation]", steps)
	}
	if e.IsCPURunning() {
		t.Error("CPU running after second halt")
	}
}

// TestHaltWhileHalted checks that halting an already-halted CPU is a
// programming error that terminates the process.
func TestHaltWhileHalted(t *testing.T) {
	e := New(wantNoExit)

	code, exited := catchFatal(t, func() { e.HaltCPU() })
	if !exited {
		t.Fatal("HaltCPU on a halted CPU did not exit")
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

// TestWakeWhileRunning checks that waking from the SW side (while the CPU
// is running) is a programming error that terminates the process.
func TestWakeWhileRunning(t *testing.T) {
	e := New(wantNoExit)

	got := make(chan exitCall, 1)
	e.BootCPU(func() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					got <- r.(exitCall)
				}
			}()
			prev := trace.SetExitFunc(func(c int) { panic(exitCall{c}) })
			defer trace.SetExitFunc(prev)
			e.WakeCPU()
		}()
		for {
			e.HaltCPU()
		}
	})

	ec := <-got
	if ec.code != 1 {
		t.Errorf("exit code = %d, want 1", ec.code)
	}
}

// TestTerminateFromHW checks that a HW-side terminate request is sticky and
// honored on the next wake cycle.
func TestTerminateFromHW(t *testing.T) {
	e := New(wantNoExit)

	e.BootCPU(func() {
		for {
			e.HaltCPU()
		}
	})

	// From the HW side this only records the request.
	e.Terminate()

	e.exit = func(c int) { panic(exitCall{c}) }
	code, exited := catchExit(func() { e.WakeCPU() })
	if !exited {
		t.Fatal("WakeCPU after Terminate did not exit")
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

// TestTerminateFromSW checks that an SW-side terminate request hands
// control back to the HW side, which then exits from its rendezvous.
func TestTerminateFromSW(t *testing.T) {
	e := New(func(c int) { panic(exitCall{c}) })

	code, exited := catchExit(func() {
		e.BootCPU(func() {
			e.Terminate() // never returns
		})
	})
	if !exited {
		t.Fatal("BootCPU did not exit after SW-side terminate")
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if e.IsCPURunning() {
		t.Error("CPU reported running after terminate")
	}
}
