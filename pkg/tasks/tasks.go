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

// Package tasks provides a registry of functions to be invoked at
// particular milestones of the runner's execution.
//
// A task belongs to one of five levels and carries an integer priority.
// When a level fires, its tasks run in priority order; tasks with equal
// priority run in registration order. Registration normally happens from
// package init functions, before the orchestrator fires the first level.
package tasks

import (
	"sort"
)

// Level is a milestone in the runner's boot/exit sequence.
type Level int

const (
	// PreBoot1 fires before the command line is parsed or the HW models
	// are initialized.
	PreBoot1 Level = iota

	// PreBoot2 fires after the command line has been parsed, but before
	// the HW models are initialized.
	PreBoot2

	// PreBoot3 fires after the HW models initialization, right before the
	// CPU is booted and the embedded SW is started.
	PreBoot3

	// FirstSleep fires the first time the CPU is sent to sleep.
	FirstSleep

	// OnExit fires during termination of the runner.
	OnExit

	numLevels
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case PreBoot1:
		return "PRE_BOOT_1"
	case PreBoot2:
		return "PRE_BOOT_2"
	case PreBoot3:
		return "PRE_BOOT_3"
	case FirstSleep:
		return "FIRST_SLEEP"
	case OnExit:
		return "ON_EXIT"
	default:
		return "UNKNOWN"
	}
}

type task struct {
	prio int
	seq  int
	fn   func()
}

// Registry holds registered tasks for each level.
//
// The zero value is ready to use. Registry is not safe for concurrent use;
// registration happens during init and levels fire from the orchestrator
// only.
type Registry struct {
	levels [numLevels][]task
	nextID int
}

// Register adds fn to the given level with the given priority.
func (r *Registry) Register(level Level, prio int, fn func()) {
	r.levels[level] = append(r.levels[level], task{prio: prio, seq: r.nextID, fn: fn})
	r.nextID++
}

// Run invokes all tasks registered at the given level, in priority order.
func (r *Registry) Run(level Level) {
	ts := r.levels[level]
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].prio < ts[j].prio })
	for _, t := range ts {
		t.fn()
	}
}

// defaultRegistry backs the package-level functions. The runner has a
// single boot sequence, so a process-wide registry is the common case.
var defaultRegistry Registry

// Register adds fn to the given level of the default registry.
func Register(level Level, prio int, fn func()) {
	defaultRegistry.Register(level, prio, fn)
}

// Run fires the given level of the default registry.
func Run(level Level) {
	defaultRegistry.Run(level)
}
