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

// Package hwm schedules the HW models and owns simulated time.
//
// Time is simulated: it only advances when an event fires, in whole event
// steps, fully decoupled from host wall time. The HW thread drives the
// models by repeatedly calling OneEvent; event handlers typically wake the
// emulated CPU and return once it has halted again.
package hwm

import (
	"math"
	"sync/atomic"

	"github.com/google/btree"
	"lemu.dev/lemu/pkg/trace"
)

// Never is the time of an event that never fires.
const Never uint64 = math.MaxUint64

// btreeDegree is the branching factor of the event queue.
const btreeDegree = 8

// event is one pending HW event. Events are ordered by fire time; seq
// breaks ties in scheduling order so runs stay deterministic.
type event struct {
	time uint64
	seq  uint64
	fn   func()
}

// Less implements btree.Item.Less.
func (e *event) Less(than btree.Item) bool {
	o := than.(*event)
	if e.time != o.time {
		return e.time < o.time
	}
	return e.seq < o.seq
}

// Models is the top of the HW models: the event queue and the time source.
//
// Models is confined to the HW thread, except for RequestStop which may be
// called from anywhere.
type Models struct {
	queue *btree.BTree

	// now is the current simulated time in microseconds.
	now uint64

	// endOfTime is when the simulation stops automatically; Never if it
	// does not.
	endOfTime uint64

	// seq numbers events in scheduling order.
	seq uint64

	// stopRequested is the asynchronous stop request (host signals).
	stopRequested atomic.Bool

	// exit terminates the process in an orderly manner; injected by the
	// orchestrator.
	exit func(code int)
}

// New returns initialized HW models with an empty event queue.
func New(exit func(code int)) *Models {
	return &Models{
		queue:     btree.New(btreeDegree),
		endOfTime: Never,
		exit:      exit,
	}
}

// Time returns the current simulated time in microseconds.
func (m *Models) Time() uint64 {
	return m.now
}

// SetEndOfTime sets when the simulation will stop automatically, in
// simulated microseconds.
func (m *Models) SetEndOfTime(us uint64) {
	m.endOfTime = us
}

// Schedule queues fn to run at simulated time at (in microseconds).
// Scheduling into the past is a programming error. Events scheduled at
// Never are legal and simply never fire.
func (m *Models) Schedule(at uint64, fn func()) {
	if at < m.now {
		trace.Fatalf("Programming error on: HW event scheduled in the past (%d < %d)", at, m.now)
	}
	m.queue.ReplaceOrInsert(&event{time: at, seq: m.seq, fn: fn})
	m.seq++
}

// SchedulePeriodic schedules fn at start and then every period
// microseconds after, until the simulation ends.
func (m *Models) SchedulePeriodic(start, period uint64, fn func()) {
	var tick func()
	at := start
	tick = func() {
		fn()
		at += period
		m.Schedule(at, tick)
	}
	m.Schedule(at, tick)
}

// NextEventTime returns the fire time of the earliest pending event, or
// Never if there is none.
func (m *Models) NextEventTime() uint64 {
	it := m.queue.Min()
	if it == nil {
		return Never
	}
	return it.(*event).time
}

// OneEvent advances the HW models by exactly one event: simulated time
// jumps to the earliest pending event and its handler runs.
//
// If that event lies at or beyond the end of time, or a stop was requested,
// the process exits instead (with code 0).
func (m *Models) OneEvent() {
	if m.stopRequested.Load() {
		trace.Tracef("@%.6fs: stopped by host signal", float64(m.now)/1e6)
		m.exit(0)
	}

	next := m.NextEventTime()
	if next == Never && m.endOfTime == Never {
		// Nothing will ever fire again: the hosted OS would sleep
		// forever. That is a model configuration error.
		trace.Fatalf("no pending HW events")
	}
	if next >= m.endOfTime {
		m.now = m.endOfTime
		trace.Tracef("@%.6fs: stop time reached", float64(m.now)/1e6)
		m.exit(0)
	}

	ev := m.queue.DeleteMin().(*event)
	m.now = ev.time
	ev.fn()
}

// RequestStop asks the HW thread to exit at its next event boundary. Safe
// to call from any thread (it is the signal handlers' entry point).
func (m *Models) RequestStop() {
	m.stopRequested.Store(true)
}

// Cleanup drops all pending events. The models themselves are reclaimed at
// process exit.
func (m *Models) Cleanup() {
	m.queue.Clear(false)
}
