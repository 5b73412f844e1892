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

// Package trace is the runner's output sink.
//
// It provides three channels: trace output goes to the host standard
// output, warnings and errors to the host standard error. Fatalf appends an
// unconditional process exit.
//
// Whether a channel decorates its output with color escapes depends on a
// process-wide tri-state per stream (unknown, yes, no). The unknown state is
// resolved with a terminal query by a PRE_BOOT_2 task; command-line options
// may pin it to yes or no before or after resolution.
package trace

import (
	"fmt"
	"os"
	"sync"

	"github.com/containerd/console"
	"github.com/sirupsen/logrus"
	"lemu.dev/lemu/pkg/tasks"
)

// Stream identifies one of the host process output streams.
type Stream int

const (
	// Stdout is the host standard output, carrying the trace channel.
	Stdout Stream = iota

	// Stderr is the host standard error, carrying warnings and errors.
	Stderr
)

// TTYState is the tri-state answer to "is this stream a terminal".
type TTYState int

const (
	// TTYUnknown means the question has not been resolved yet.
	TTYUnknown TTYState = iota

	// TTYNo means the stream is not a terminal (or color was disabled).
	TTYNo

	// TTYYes means the stream is a terminal (or color was forced).
	TTYYes
)

var (
	// mu protects isATTY and exitFn.
	mu     sync.Mutex
	isATTY = [2]TTYState{TTYUnknown, TTYUnknown}
	exitFn = func(code int) { os.Exit(code) }

	traceLogger *logrus.Logger
	alertLogger *logrus.Logger
)

func init() {
	traceLogger = logrus.New()
	traceLogger.SetOutput(os.Stdout)
	traceLogger.SetFormatter(&sinkFormatter{stream: Stdout})
	traceLogger.SetLevel(logrus.InfoLevel)

	alertLogger = logrus.New()
	alertLogger.SetOutput(os.Stderr)
	alertLogger.SetFormatter(&sinkFormatter{stream: Stderr})
	alertLogger.SetLevel(logrus.WarnLevel)

	// The unknown states resolve once the command line has had its chance
	// to pin them.
	tasks.Register(tasks.PreBoot2, 0, DecideAboutColor)
}

const (
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiReset  = "\x1b[0m"
)

// sinkFormatter renders entries as bare lines. Warnings and errors carry a
// level prefix, colored when their stream is a terminal.
type sinkFormatter struct {
	stream Stream
}

// Format implements logrus.Formatter.Format.
func (f *sinkFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var prefix string
	switch e.Level {
	case logrus.WarnLevel:
		prefix = "WARNING: "
		if OverTTY(f.stream) == TTYYes {
			prefix = ansiYellow + "WARNING" + ansiReset + ": "
		}
	case logrus.ErrorLevel, logrus.FatalLevel:
		prefix = "ERROR: "
		if OverTTY(f.stream) == TTYYes {
			prefix = ansiRed + "ERROR" + ansiReset + ": "
		}
	}
	return []byte(prefix + e.Message + "\n"), nil
}

// Tracef prints to the trace channel (host standard output).
func Tracef(format string, args ...any) {
	traceLogger.Infof(format, args...)
}

// Debugf prints to the trace channel, but only in verbose mode.
func Debugf(format string, args ...any) {
	traceLogger.Debugf(format, args...)
}

// Warningf prints a warning to the host standard error.
func Warningf(format string, args ...any) {
	alertLogger.Warnf(format, args...)
}

// Fatalf prints an error to the host standard error and terminates the
// process with a failure code. It does not return.
func Fatalf(format string, args ...any) {
	alertLogger.Errorf(format, args...)
	mu.Lock()
	exit := exitFn
	mu.Unlock()
	exit(1)
	panic(fmt.Sprintf("trace: exit function returned: "+format, args...))
}

// SetExitFunc replaces the function Fatalf terminates the process with, and
// returns the previous one. The orchestrator points this at its exit-code
// clamping exit path.
func SetExitFunc(fn func(int)) func(int) {
	mu.Lock()
	defer mu.Unlock()
	prev := exitFn
	exitFn = fn
	return prev
}

// SetVerbose enables or disables the debug channel.
func SetVerbose(v bool) {
	if v {
		traceLogger.SetLevel(logrus.DebugLevel)
	} else {
		traceLogger.SetLevel(logrus.InfoLevel)
	}
}

// EnableColor returns both streams to automatic color detection.
func EnableColor() {
	setTTY(TTYUnknown, TTYUnknown)
}

// DisableColor disables color on both streams even if they are terminals.
func DisableColor() {
	setTTY(TTYNo, TTYNo)
}

// ForceColor enables color on both streams even if they are files or pipes.
func ForceColor() {
	setTTY(TTYYes, TTYYes)
}

func setTTY(out, err TTYState) {
	mu.Lock()
	defer mu.Unlock()
	isATTY[Stdout] = out
	isATTY[Stderr] = err
}

// OverTTY reports what is known about the given stream being a terminal.
func OverTTY(s Stream) TTYState {
	mu.Lock()
	defer mu.Unlock()
	return isATTY[s]
}

// DecideAboutColor resolves any still-unknown stream state with a terminal
// query. Runs as a PRE_BOOT_2 task, after command-line parsing.
func DecideAboutColor() {
	mu.Lock()
	defer mu.Unlock()
	if isATTY[Stdout] == TTYUnknown {
		isATTY[Stdout] = queryTTY(os.Stdout)
	}
	if isATTY[Stderr] == TTYUnknown {
		isATTY[Stderr] = queryTTY(os.Stderr)
	}
}

func queryTTY(f *os.File) TTYState {
	if _, err := console.ConsoleFromFile(f); err != nil {
		return TTYNo
	}
	return TTYYes
}
