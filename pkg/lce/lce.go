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

// Package lce emulates the CPU being started and stopped.
//
// It step-locks the HW and SW operation so that only one of them executes
// at a time: the HW-model driver blocks while the emulated CPU runs, and
// every SW thread blocks while the HW models advance time. Control is
// transferred with a rendezvous on a single mutex and condition variable
// guarding the cpuHalted flag.
package lce

import (
	"sync"

	"lemu.dev/lemu/pkg/trace"
)

// Emulator is one emulated CPU.
type Emulator struct {
	// mu protects cpuHalted and terminate, and is the mutex cond waits on.
	mu   sync.Mutex
	cond *sync.Cond

	// cpuHalted tells which side is in control: true means the HW side
	// runs, false means the SW side runs.
	cpuHalted bool

	// terminate is the sticky shutdown request. It only transitions from
	// false to true.
	terminate bool

	// startRoutine is the entry of the first SW thread, set at boot.
	startRoutine func()

	// exit terminates the process in an orderly manner. Injected so the
	// core does not depend on the orchestrator.
	exit func(code int)
}

// New returns an initialized emulator with the CPU halted. exit is invoked
// (with code 0) when a rendezvous observes the terminate flag.
func New(exit func(code int)) *Emulator {
	e := &Emulator{
		cpuHalted: true,
		exit:      exit,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// changeStateAndWait flips cpuHalted to halted and waits until somebody
// else flips it back. Both the HW and the SW side use it to transfer
// control: the waiter only proceeds after re-acquiring the mutex and
// observing the flag flipped, so each side is guaranteed the other ran up
// to its own next rendezvous.
//
// Precondition: e.mu is held.
// Postcondition: e.mu is released.
func (e *Emulator) changeStateAndWait(halted bool) {
	e.cpuHalted = halted

	// Let the other side know the CPU has changed state.
	e.cond.Broadcast()

	// Wait until the CPU state has been changed again. Either we just
	// awoke it, and wait until it has run to completion, or we just
	// halted it, and wait until the HW models awake it again.
	for e.cpuHalted == halted {
		e.cond.Wait()
	}

	e.mu.Unlock()
}

// BootCPU boots the emulated CPU: it spawns the first embedded SW thread
// running start, and holds the caller until that thread (or a child it
// spawns) calls HaltCPU.
//
// An embedded SW thread may request termination during boot, in which case
// BootCPU never returns.
func (e *Emulator) BootCPU(start func()) {
	e.mu.Lock()

	e.cpuHalted = false
	e.startRoutine = start

	go e.swWrapper()

	// Wait until the embedded OS has sent the CPU to sleep for the first
	// time.
	for !e.cpuHalted {
		e.cond.Wait()
	}
	e.mu.Unlock()

	if e.isTerminating() {
		e.exit(0)
	}
}

// swWrapper is the body of the first SW thread.
func (e *Emulator) swWrapper() {
	// Ensure BootCPU has reached its wait loop before the SW side starts.
	e.mu.Lock()
	start := e.startRoutine
	e.mu.Unlock()

	start()
}

// HaltCPU halts the CPU: it holds this embedded SW thread until the CPU is
// awoken again, and releases the HW thread held in BootCPU or WakeCPU.
//
// Calling it from a HW thread is a programming error.
func (e *Emulator) HaltCPU() {
	e.mu.Lock()
	if e.cpuHalted {
		e.mu.Unlock()
		trace.Fatalf("Programming error on: This CPU was already halted")
	}
	e.changeStateAndWait(true)
}

// WakeCPU awakes the CPU: it holds this HW thread until the CPU halts
// again, and releases the SW thread held in HaltCPU.
//
// Calling it from a SW thread is a programming error.
func (e *Emulator) WakeCPU() {
	e.mu.Lock()
	if !e.cpuHalted {
		e.mu.Unlock()
		trace.Fatalf("Programming error on: This CPU was already awake")
	}
	e.changeStateAndWait(false)

	// If while the SW was running it was decided to terminate the
	// execution, we stop immediately.
	if e.isTerminating() {
		e.exit(0)
	}
}

// IsCPURunning reports whether the CPU is currently running.
func (e *Emulator) IsCPURunning() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.cpuHalted
}

// Terminate requests the program to be terminated.
//
// From a HW thread it records the request and returns right away; cleanup
// is deferred to process exit. (The emulator state is intentionally never
// freed: Terminate may be called repeatedly on the same instance, and the
// host OS reclaims everything at process end.)
//
// From a SW thread it gives control back to the HW thread, telling it to
// terminate ASAP, and never returns: the thread parks until the process
// exits.
func (e *Emulator) Terminate() {
	e.mu.Lock()
	if e.cpuHalted {
		e.terminate = true
		e.mu.Unlock()
		return
	}
	e.terminate = true
	e.cpuHalted = true
	e.cond.Broadcast()
	e.mu.Unlock()

	// Park until the process exits. The HW side observes the terminate
	// flag on its side of the rendezvous and exits the process; this SW
	// thread is reclaimed with it.
	select {}
}

func (e *Emulator) isTerminating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminate
}
