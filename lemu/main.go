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

// Binary lemu hosts an embedded OS on top of a general-purpose host OS,
// multiplexing its threads onto exactly one running thread at a time.
package main

import (
	"lemu.dev/lemu/lemu/cli"
	"lemu.dev/lemu/lemu/version"
)

// version.Version is set dynamically, but needs to be linked in the
// binary, so reference it here.
var _ = version.Version()

func main() {
	cli.Main()
}
