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

// Package cli is the main entrypoint for lemu.
package cli

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"lemu.dev/lemu/lemu/boot"
)

// Main is the main entrypoint.
func Main() {
	// A termination signal requests a clean stop at the next HW event
	// boundary, so runs interrupted from the shell still exit through the
	// ordered teardown.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT)
	go func() {
		<-sigs
		boot.RequestStop()
	}()

	boot.Init(os.Args[1:])
	boot.MainLoop()
}
