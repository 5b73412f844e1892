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

package hosted

import (
	"testing"
	"time"

	"lemu.dev/lemu/pkg/lce"
)

// TestCPU0Lifecycle drives the CPU-side adapters through a boot, a wake
// cycle and the cleanup, with registered hosted hooks.
func TestCPU0Lifecycle(t *testing.T) {
	hooks := 0
	RegisterPreCmdlineHook(func() { hooks++ })
	RegisterPreHWInitHook(func() { hooks++ })
	CPU0PreCmdlineHooks()
	CPU0PreHWInitHooks()
	if hooks != 2 {
		t.Fatalf("hooks run = %d, want 2", hooks)
	}

	if HasBootRoutine() {
		t.Fatal("boot routine registered before registration")
	}
	var wakes int
	RegisterBootRoutine(func() {
		for {
			HaltCPU()
			wakes++
		}
	})
	if !HasBootRoutine() {
		t.Fatal("boot routine not visible after registration")
	}

	SetCPU(lce.New(func(int) { t.Error("unexpected exit") }))
	CPU0Boot()

	if IsCPURunning() {
		t.Error("CPU running after boot halt")
	}
	WakeCPU()
	if wakes != 1 {
		t.Errorf("wakes = %d, want 1", wakes)
	}

	CPU0Cleanup()
}

// TestThreadAdapters drives the thread-side adapters, including the two
// previous naming generations, through a create/swap/abort cycle.
func TestThreadAdapters(t *testing.T) {
	events := make(chan string, 16)
	var t0, t1 int

	Init(func(p any) { p.(func())() })

	t0 = NewThread(func() {
		events <- "t0"
		if got := UniqueThreadID(t0); got != 0 {
			t.Errorf("UniqueThreadID(t0) = %d, want 0", got)
		}
		if got := LerGetUniqueThreadID(t0); got != 0 {
			t.Errorf("LerGetUniqueThreadID(t0) = %d, want 0", got)
		}
		PosixSwap(t1, t0)
		events <- "t0.back"
		AbortThread(t0, true)
		Swap(t1, t0)
	})
	t1 = PosixNewThread(func() {
		events <- "t1"
		LerSwap(t0, t1)
		events <- "t1.back"
		LerAbortThread(t1, true)
		LerSwap(t1, t1)
	})

	go MainThreadStart(t0)

	want := []string{"t0", "t1", "t0.back", "t1.back"}
	for _, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("event = %q, want %q", got, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}

	CleanUp()
}
