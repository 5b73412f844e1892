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

// Package lct multiplexes the hosted OS threads onto one executing thread.
//
// The hosted OS and its application run as a set of host threads, of which
// it only ever sees one executing at a time. Which one is controlled with a
// single mutex and condition variable shared by all threads, and the
// currentlyAllowed token.
//
// The main part of each thread's execution occurs fully synchronously and
// deterministically, only when commanded by the hosted scheduler. But
// thread creation spawns a new host thread whose start is asynchronous to
// the rest, until it synchronizes in waitUntilAllowed; and the abort tails
// also execute somewhat asynchronously.
//
// Threads are abstracted behind a table; an index in this table identifies
// a thread in the interface to the hosted kernel. Indices are the stable
// identity: growth never invalidates them.
package lct

import (
	"runtime"
	"sync"
	"sync/atomic"

	"lemu.dev/lemu/pkg/trace"
)

// allocChunkSize is how many slots the threads table grows by at a time.
const allocChunkSize = 64

// State is the lifecycle state of a thread slot.
type State int

const (
	// NotUsed marks a slot that has never held a thread.
	NotUsed State = iota

	// Used marks a slot with a live thread.
	Used

	// Aborting marks a thread that must run its abort tail at its next
	// execution step instead of any embedded code.
	Aborting

	// Aborted marks a thread whose abort tail has run. Aborted slots are
	// not reused unless Config.ReuseAbortedSlots is set.
	Aborted

	// Failed marks a thread whose entry callback unexpectedly returned.
	Failed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case NotUsed:
		return "NOTUSED"
	case Used:
		return "USED"
	case Aborting:
		return "ABORTING"
	case Aborted:
		return "ABORTED"
	case Failed:
		return "FAILED"
	default:
		return "INVALID"
	}
}

// slot is one entry of the threads table.
type slot struct {
	// threadIdx is the index of this slot in the table, stable for the
	// slot's lifetime.
	threadIdx int

	state State

	// running tells whether this is the currently executing thread.
	// Redundant with currentlyAllowed, but kept for debugging.
	running bool

	// uniqueID is a unique, consecutive thread number, for debugging.
	uniqueID int

	// payload is opaque data from the hosted OS, passed verbatim to the
	// entry callback. What it is, if anything, is up to the hosted OS.
	payload any
}

// Config configures a Multiplexer.
type Config struct {
	// ReuseAbortedSlots lets slot allocation treat ABORTED slots as free.
	// It is off by default: hosted-OS scheduling proved sensitive to slot
	// reuse.
	ReuseAbortedSlots bool
}

// Multiplexer is one instance of the cooperative thread multiplexer.
type Multiplexer struct {
	// mu is the single lock protecting the threads table and
	// currentlyAllowed. All SW threads block on cond, which shares it.
	mu   sync.Mutex
	cond *sync.Cond

	// table is the threads table. It grows in chunks; slots are heap
	// allocated so outstanding references stay valid across growth.
	table []*slot

	// currentlyAllowed is the index of the one slot whose SW code may
	// run. -1 before the first swap.
	currentlyAllowed int

	// createCount provides the unique thread numbers, for debugging.
	createCount int

	// terminate is the teardown flag. It is set without the mutex held
	// (cleanup can run while the allowed thread still owns it), hence
	// atomic.
	terminate atomic.Bool

	// entry is the hosted-OS-provided per-thread entry callback. It is
	// expected to never return.
	entry func(payload any)

	cfg Config
}

// Init constructs a multiplexer with the default configuration and
// registers entry as the per-thread entry callback.
//
// Init returns with the multiplexer mutex held by the caller; the caller
// releases it implicitly at its first wait point. This is what makes
// thread creation safe: a newly spawned thread blocks acquiring the mutex
// until its creator has reached a wait.
func Init(entry func(payload any)) *Multiplexer {
	return InitWithConfig(entry, Config{})
}

// InitWithConfig is Init with an explicit configuration.
func InitWithConfig(entry func(payload any), cfg Config) *Multiplexer {
	m := &Multiplexer{
		table:            make([]*slot, 0, allocChunkSize),
		currentlyAllowed: -1,
		entry:            entry,
		cfg:              cfg,
	}
	m.cond = sync.NewCond(&m.mu)
	m.growTable()

	m.mu.Lock()
	return m
}

// growTable appends one zeroed chunk to the threads table.
func (m *Multiplexer) growTable() {
	base := len(m.table)
	for i := 0; i < allocChunkSize; i++ {
		m.table = append(m.table, &slot{threadIdx: base + i})
	}
}

// getEmptySlot returns the index of the first free slot, growing the table
// if none is left.
func (m *Multiplexer) getEmptySlot() int {
	for i, s := range m.table {
		if s.state == NotUsed || (m.cfg.ReuseAbortedSlots && s.state == Aborted) {
			return i
		}
	}
	// We ran out of table without finding a slot: expand it. The first
	// newly created entry is good.
	first := len(m.table)
	m.growTable()
	return first
}

// NewThread creates a new host thread for a new hosted OS thread.
//
// It returns the thread index, which should be used to refer to this thread
// in all future calls. payload will be handed to the entry callback when
// the thread is first allowed to run.
//
// The caller must hold the multiplexer mutex (it does, by construction: all
// embedded code runs with it held). The spawned thread will not get past
// its prologue until the caller releases it at a wait point.
func (m *Multiplexer) NewThread(payload any) int {
	tSlot := m.getEmptySlot()
	s := m.table[tSlot]
	s.state = Used
	s.running = false
	s.uniqueID = m.createCount
	s.payload = payload
	m.createCount++

	go m.threadStarter(s)

	trace.Debugf("created thread [%d] %d", s.uniqueID, tSlot)

	return tSlot
}

// waitUntilAllowed blocks this thread until somebody lets it run.
//
// We leave this function with the mutex held by this particular thread; in
// normal circumstances it is only released internally in cond.Wait while
// blocked.
//
// Every wake-up rechecks the allowed-thread predicate, the abort flag and
// the teardown flag: an abort request targeting a blocked thread terminates
// it at its next wake-up without it ever running further embedded code.
func (m *Multiplexer) waitUntilAllowed(thisTh int) {
	m.table[thisTh].running = false

	// An abort may have been requested before this thread ever reached
	// its first wait. It must not run any embedded code in that case
	// either, even if it is already the allowed thread.
	if m.table[thisTh].state == Aborting {
		m.abortTail(thisTh)
	}

	trace.Debugf("Thread [%d] %d: waiting to be allowed to run", m.table[thisTh].uniqueID, thisTh)

	for thisTh != m.currentlyAllowed {
		m.cond.Wait()

		if m.terminate.Load() {
			// Cooperative stand-in for thread cancellation: the
			// cleanup handler releases the mutex on the way out.
			runtime.Goexit()
		}
		if m.table[thisTh].state == Aborting {
			m.abortTail(thisTh)
		}
	}

	m.table[thisTh].running = true

	trace.Debugf("Thread [%d] %d: allowed to run", m.table[thisTh].uniqueID, thisTh)
}

// letRun lets thread nextAllowed run.
//
// It may only be called with the mutex held: the awoken threads stay
// blocked until the caller reaches its own waitUntilAllowed loop or abort
// tail mutex release.
func (m *Multiplexer) letRun(nextAllowed int) {
	trace.Debugf("letting thread [%d] %d run", m.table[nextAllowed].uniqueID, nextAllowed)

	m.currentlyAllowed = nextAllowed
	m.cond.Broadcast()
}

// preexitCleanup releases the mutex so the next allowed thread can run. In
// the original host-thread model the thread would also detach itself here;
// host threads need no detach on this runtime.
func (m *Multiplexer) preexitCleanup() {
	m.mu.Unlock()
}

// abortTail is run by a thread that is being aborted, with the mutex held.
// After it, no embedded code of this slot ever executes again.
func (m *Multiplexer) abortTail(thisTh int) {
	trace.Debugf("Thread [%d] %d: aborting (exiting)", m.table[thisTh].uniqueID, thisTh)

	m.table[thisTh].running = false
	m.table[thisTh].state = Aborted
	m.preexitCleanup()
	runtime.Goexit()
}

// Swap lets thread nextAllowed run and blocks this thread until it is
// allowed again. If this thread was marked as aborting, its abort tail runs
// instead and Swap never returns.
//
// Called by the thread currently holding the mutex and identified by
// thisTh; the hosted scheduler does the picking.
func (m *Multiplexer) Swap(nextAllowed, thisTh int) {
	m.letRun(nextAllowed)

	if m.table[thisTh].state == Aborting {
		trace.Debugf("Thread [%d] %d: aborting on swap out", m.table[thisTh].uniqueID, thisTh)
		m.abortTail(thisTh)
	}
	m.waitUntilAllowed(thisTh)
}

// MainThreadStart lets thread nextAllowed run and exits the calling
// bootstrap thread.
//
// We could have just done a Swap, but that would have left the bootstrap
// thread lingering; instead it exits after enabling the new one.
func (m *Multiplexer) MainThreadStart(nextAllowed int) {
	m.letRun(nextAllowed)

	trace.Debugf("bootstrap thread exiting now")

	m.preexitCleanup()
	runtime.Goexit()
}

// cleanupHandler runs when any thread is cancelled or exits.
//
// If we are not terminating, this is just an aborted thread and the mutex
// was already released. Otherwise, release the mutex so other threads
// caught waiting for it can terminate too.
func (m *Multiplexer) cleanupHandler() {
	if !m.terminate.Load() {
		return
	}
	m.mu.Unlock()
}

// threadStarter is the prologue every new host thread runs before its
// embedded entry.
func (m *Multiplexer) threadStarter(s *slot) {
	trace.Debugf("Thread [%d] %d: starting", s.uniqueID, s.threadIdx)

	// Block until all other running threads reach their wait loops and
	// release the mutex.
	m.mu.Lock()

	// The program may have been finished before this thread ever got to
	// run.
	if m.terminate.Load() {
		m.cleanupHandler()
		runtime.Goexit()
	}

	defer m.cleanupHandler()

	// The thread would try to execute immediately, so block it until
	// allowed.
	m.waitUntilAllowed(s.threadIdx)

	m.entry(s.payload)

	// We only get here if the entry callback actually returns, which it
	// should not. Handle it gracefully just in case.
	trace.Tracef("Thread [%d] %d ended!?!", s.uniqueID, s.threadIdx)

	s.running = false
	s.state = Failed
}

// AbortThread marks a thread as being aborted. The underlying host thread
// terminates some time later: if the thread is marking itself, as soon as
// the hosted OS swaps it out; if another thread, at some non-specific
// future time — but no embedded part of the thread executes anymore either
// way.
//
// thisIsMe must be true iff the call is happening from that thread itself.
// Aborting an already non-live slot from another thread is a no-op (the
// thread may well have been aborted before); a thread finding itself
// non-live is a programming error.
func (m *Multiplexer) AbortThread(threadIdx int, thisIsMe bool) {
	s := m.table[threadIdx]

	if thisIsMe {
		if s.state != Used {
			trace.Fatalf("Programming error on: thread [%d] %d aborting itself while %v",
				s.uniqueID, threadIdx, s.state)
		}
		trace.Debugf("Thread [%d] %d: marked myself as aborting", s.uniqueID, threadIdx)
	} else {
		if s.state != Used {
			return
		}
		trace.Debugf("aborting not scheduled thread [%d] %d", s.uniqueID, threadIdx)
	}

	s.state = Aborting
	// The host thread lingers until it catches the mutex or awakes on the
	// condition; eager cancellation here would leave the mutex state
	// uncontrolled.
}

// UniqueThreadID returns a thread identifier unique for this run. It is
// only meant for debug purposes.
func (m *Multiplexer) UniqueThreadID(threadIdx int) int {
	return m.table[threadIdx].uniqueID
}

// ThreadState returns the lifecycle state of a thread slot. It takes the
// multiplexer mutex, so it may only be called from outside the embedded
// code (debug and test instrumentation).
func (m *Multiplexer) ThreadState(threadIdx int) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table[threadIdx].state
}

// CleanUp requests all threads to terminate.
//
// Cancellation is cooperative: the broadcast stands in for per-thread
// cancellation, and every blocked thread observes the teardown flag at its
// next wake-up and terminates through its cleanup handler, releasing the
// mutex for the next one.
//
// CleanUp cannot guarantee the threads are gone before the HW thread
// exits: waiting for each of them could deadlock, and a call here can come
// from an assertion handler, so nothing is assumed to still work. The
// table is not freed, the condition variable not destroyed, the instance
// not released — the host OS reclaims it all at process end.
func (m *Multiplexer) CleanUp() {
	// Note: the allowed thread may be holding the mutex (blocked on the
	// CPU rendezvous), so it must not be acquired here.
	m.terminate.Store(true)
	m.cond.Broadcast()
}
