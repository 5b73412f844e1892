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

// Package safecall turns unexpected host primitive failures into
// deterministic process termination with a pinned message.
package safecall

import (
	"lemu.dev/lemu/pkg/trace"
)

// Check aborts the process with a diagnostic if a call into a host OS
// primitive failed. call is the text identifying the call site.
//
// None of the guarded calls is expected to ever fail.
func Check(err error, call string) {
	if err != nil {
		trace.Fatalf("Error on: %s: %v", call, err)
	}
}
