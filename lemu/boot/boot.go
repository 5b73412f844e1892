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

// Package boot orchestrates the runner's lifecycle.
//
// The basic principle of operation is: no asynchronous behavior, no
// indeterminism. If you run the same thing 20 times, you get exactly the
// same result 20 times. It does not matter if you are running from the
// console or in a debugger and you go for lunch in the middle of the
// session. Execution is decoupled from the underlying host: time is
// simulated and advances with HW events only.
package boot

import (
	"flag"
	"fmt"
	"io"
	"os"

	"lemu.dev/lemu/lemu/config"
	"lemu.dev/lemu/lemu/version"
	"lemu.dev/lemu/pkg/hosted"
	"lemu.dev/lemu/pkg/hwm"
	"lemu.dev/lemu/pkg/lce"
	"lemu.dev/lemu/pkg/tasks"
	"lemu.dev/lemu/pkg/trace"
)

// defaultTimerPeriod is the period of the system timer HW event, in
// simulated microseconds. Each tick wakes the emulated CPU once.
const defaultTimerPeriod uint64 = 10000

var (
	conf *config.Config
	cpu  *lce.Emulator
	hw   *hwm.Models

	// maxExitCode clamps the requested exit code to the highest one seen
	// so far; an early non-zero request must not be masked by a later
	// clean one.
	maxExitCode int

	// osExit is os.Exit, indirected for the tests.
	osExit = os.Exit
)

// Exit terminates the execution.
//
// code is the exit code requested for the shell; another component may have
// requested a higher one earlier, which then takes precedence.
//
// When called from a SW thread, the CPU cleanup does not return; instead
// Exit is recalled ASAP from the HW thread, which finishes the job.
func Exit(code int) {
	if code > maxExitCode {
		maxExitCode = code
	}

	hosted.CPU0Cleanup()
	tasks.Run(tasks.OnExit)
	if hw != nil {
		hw.Cleanup()
	}
	config.Cleanup()
	osExit(maxExitCode)
}

// Init runs all early initialization steps, including command-line parsing
// and the CPU start, until the HW models are ready to run via OneEvent.
func Init(args []string) {
	// The host standard streams are written unbuffered by the runtime, so
	// output ordering is already what a line-buffered console would give.

	// Route the sink's fatal exits through the clamping path.
	trace.SetExitFunc(func(int) { Exit(1) })

	cpu = lce.New(Exit)
	hosted.SetCPU(cpu)

	tasks.Run(tasks.PreBoot1)
	hosted.CPU0PreCmdlineHooks()

	parseCmdLine(args)

	tasks.Run(tasks.PreBoot2)
	hosted.CPU0PreHWInitHooks()

	hw = hwm.New(Exit)
	if conf.StopAt >= 0 {
		hw.SetEndOfTime(uint64(conf.StopAt * 1e6))
	}
	hw.SchedulePeriodic(defaultTimerPeriod, defaultTimerPeriod, func() {
		cpu.WakeCPU()
	})

	tasks.Run(tasks.PreBoot3)

	if !hosted.HasBootRoutine() {
		hosted.RegisterBootRoutine(idleLoop)
	}
	hosted.CPU0Boot()

	tasks.Run(tasks.FirstSleep)
}

// idleLoop is the boot routine used when no hosted OS registered one: the
// CPU halts immediately and does nothing on every wake.
func idleLoop() {
	for {
		cpu.HaltCPU()
	}
}

// MainLoop drives the HW models until something exits the process.
func MainLoop() {
	for {
		hw.OneEvent()
	}
}

// ExecFor runs the simulation for at least us simulated microseconds, then
// returns. This does not affect event timing: the "next event" may be
// significantly after the request if nothing was scheduled earlier.
func ExecFor(us uint64) {
	start := hw.Time()
	for {
		hw.OneEvent()
		if hw.Time() >= start+us {
			return
		}
	}
}

// RequestStop asks the runner to exit cleanly at the next event boundary.
// Safe to call from any thread; before HW init it exits right away.
func RequestStop() {
	if hw == nil {
		osExit(0)
		return
	}
	hw.RequestStop()
}

func printUsage(flagSet *flag.FlagSet) {
	fmt.Fprintf(os.Stdout, "Usage: lemu [options] [test args]\n\n")
	flagSet.SetOutput(os.Stdout)
	flagSet.PrintDefaults()
}

func parseCmdLine(args []string) {
	flagSet := flag.NewFlagSet("lemu", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.Usage = func() {}
	config.RegisterFlags(flagSet)

	err := flagSet.Parse(args)
	if err == flag.ErrHelp {
		printUsage(flagSet)
		Exit(0)
	}
	if err != nil {
		trace.Warningf("%v", err)
		trace.Tracef("Try '--help' for more information.")
		Exit(1)
	}

	if flagSet.Lookup("version").Value.String() == "true" {
		trace.Tracef("lemu version %s", version.Version())
		Exit(0)
	}

	c, err := config.NewFromFlags(flagSet, args)
	if err != nil {
		trace.Warningf("%v", err)
		trace.Tracef("Try '--help' for more information.")
		Exit(1)
	}
	conf = c
	trace.SetVerbose(conf.Verbose)
}
