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

// Package hosted is the stable surface the hosted OS calls into.
//
// It hides the multiplexer and CPU emulator instances behind process-wide
// state, so hosted call sites do not need to thread a handle through. The
// instances are held here for the lifetime of the process; they are never
// freed (teardown intentionally leaks, see the lct and lce packages).
package hosted

import (
	"lemu.dev/lemu/pkg/lce"
	"lemu.dev/lemu/pkg/lct"
	"lemu.dev/lemu/pkg/trace"
)

var (
	mux *lct.Multiplexer
	cpu *lce.Emulator

	bootRoutine     func()
	preCmdlineHooks []func()
	preHWInitHooks  []func()
)

// RegisterBootRoutine sets the entry of the first SW thread, run when the
// CPU boots. The hosted OS registers it from an init function.
func RegisterBootRoutine(fn func()) {
	bootRoutine = fn
}

// HasBootRoutine reports whether a boot routine has been registered.
func HasBootRoutine() bool {
	return bootRoutine != nil
}

// RegisterPreCmdlineHook adds a hook run before command-line parsing.
func RegisterPreCmdlineHook(fn func()) {
	preCmdlineHooks = append(preCmdlineHooks, fn)
}

// RegisterPreHWInitHook adds a hook run before the HW models initialize.
func RegisterPreHWInitHook(fn func()) {
	preHWInitHooks = append(preHWInitHooks, fn)
}

// SetCPU hands the emulated CPU instance to this package. The orchestrator
// calls it once, before CPU0Boot.
func SetCPU(e *lce.Emulator) {
	cpu = e
}

// CPU0PreCmdlineHooks runs the hosted pre-cmdline hooks.
func CPU0PreCmdlineHooks() {
	for _, fn := range preCmdlineHooks {
		fn()
	}
}

// CPU0PreHWInitHooks runs the hosted pre-HW-init hooks.
func CPU0PreHWInitHooks() {
	for _, fn := range preHWInitHooks {
		fn()
	}
}

// CPU0Boot boots the emulated CPU with the registered boot routine.
func CPU0Boot() {
	if cpu == nil || bootRoutine == nil {
		trace.Fatalf("Programming error on: CPU booted with no boot routine registered")
	}
	cpu.BootCPU(bootRoutine)
}

// CPU0Cleanup terminates the emulated CPU and the thread multiplexer.
//
// If called from a SW thread, the CPU termination hands control back to
// the HW side and never returns; the multiplexer cleanup then happens on
// the HW side's second pass through here.
func CPU0Cleanup() {
	if cpu != nil {
		cpu.Terminate()
	}
	if mux != nil {
		mux.CleanUp()
	}
}

// Init constructs the process-wide thread multiplexer, registering entry as
// the per-thread entry callback. As with lct.Init, the caller leaves with
// the multiplexer mutex held.
func Init(entry func(payload any)) {
	mux = lct.Init(entry)
}

// NewThread creates a new thread; payload is handed to the entry callback
// on its first scheduled run. Returns the thread index.
func NewThread(payload any) int {
	return mux.NewThread(payload)
}

// Swap lets thread nextAllowed run and blocks the calling thread thisTh.
func Swap(nextAllowed, thisTh int) {
	mux.Swap(nextAllowed, thisTh)
}

// MainThreadStart lets thread nextAllowed run and exits the bootstrap
// thread.
func MainThreadStart(nextAllowed int) {
	mux.MainThreadStart(nextAllowed)
}

// AbortThread marks a thread as being aborted.
func AbortThread(threadIdx int, thisIsMe bool) {
	mux.AbortThread(threadIdx, thisIsMe)
}

// UniqueThreadID returns the debug identifier of a thread.
func UniqueThreadID(threadIdx int) int {
	return mux.UniqueThreadID(threadIdx)
}

// CleanUp requests all threads to terminate.
func CleanUp() {
	if mux != nil {
		mux.CleanUp()
	}
}

// HaltCPU halts the emulated CPU. SW side only.
func HaltCPU() {
	cpu.HaltCPU()
}

// WakeCPU wakes the emulated CPU. HW side only.
func WakeCPU() {
	cpu.WakeCPU()
}

// IsCPURunning reports whether the emulated CPU is running.
func IsCPURunning() bool {
	return cpu.IsCPURunning()
}

// TerminateCPU requests termination of the emulated CPU.
func TerminateCPU() {
	cpu.Terminate()
}
