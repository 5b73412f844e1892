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

// Compatibility shims for hosted OS code written against the two previous
// generations of this interface. Data-less translation only; new code uses
// the plain names.

package hosted

// PosixArchInit is the oldest-generation name for Init.
//
// Deprecated: use Init.
func PosixArchInit(entry func(payload any)) {
	Init(entry)
}

// PosixNewThread is the oldest-generation name for NewThread.
//
// Deprecated: use NewThread.
func PosixNewThread(payload any) int {
	return NewThread(payload)
}

// PosixSwap is the oldest-generation name for Swap.
//
// Deprecated: use Swap.
func PosixSwap(nextAllowed, thisTh int) {
	Swap(nextAllowed, thisTh)
}

// PosixMainThreadStart is the oldest-generation name for MainThreadStart.
//
// Deprecated: use MainThreadStart.
func PosixMainThreadStart(nextAllowed int) {
	MainThreadStart(nextAllowed)
}

// PosixAbortThread is the oldest-generation name for AbortThread.
//
// Deprecated: use AbortThread.
func PosixAbortThread(threadIdx int, thisIsMe bool) {
	AbortThread(threadIdx, thisIsMe)
}

// PosixArchCleanUp is the oldest-generation name for CleanUp.
//
// Deprecated: use CleanUp.
func PosixArchCleanUp() {
	CleanUp()
}

// LerThreadInit is the previous-generation name for Init.
//
// Deprecated: use Init.
func LerThreadInit(entry func(payload any)) {
	Init(entry)
}

// LerNewThread is the previous-generation name for NewThread.
//
// Deprecated: use NewThread.
func LerNewThread(payload any) int {
	return NewThread(payload)
}

// LerSwap is the previous-generation name for Swap.
//
// Deprecated: use Swap.
func LerSwap(nextAllowed, thisTh int) {
	Swap(nextAllowed, thisTh)
}

// LerMainThreadStart is the previous-generation name for MainThreadStart.
//
// Deprecated: use MainThreadStart.
func LerMainThreadStart(nextAllowed int) {
	MainThreadStart(nextAllowed)
}

// LerAbortThread is the previous-generation name for AbortThread.
//
// Deprecated: use AbortThread.
func LerAbortThread(threadIdx int, thisIsMe bool) {
	AbortThread(threadIdx, thisIsMe)
}

// LerGetUniqueThreadID is the previous-generation name for UniqueThreadID.
//
// Deprecated: use UniqueThreadID.
func LerGetUniqueThreadID(threadIdx int) int {
	return UniqueThreadID(threadIdx)
}

// LerCleanUp is the previous-generation name for CleanUp.
//
// Deprecated: use CleanUp.
func LerCleanUp() {
	CleanUp()
}
