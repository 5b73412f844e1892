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

// Command-line accessors under the names hosted drivers and tests were
// written against, so they keep building unchanged.

package config

// NativeGetCmdLineArgs is the previous-generation name for CmdLineArgs.
//
// Deprecated: use Current().CmdLineArgs.
func NativeGetCmdLineArgs() []string {
	if current == nil {
		return nil
	}
	return current.CmdLineArgs()
}

// NativeGetTestCmdLineArgs is the previous-generation name for TestArgs.
//
// Deprecated: use Current().TestArgs.
func NativeGetTestCmdLineArgs() []string {
	if current == nil {
		return nil
	}
	return current.TestArgs()
}

// LerGetCmdLineArgs is the previous-generation name for CmdLineArgs.
//
// Deprecated: use Current().CmdLineArgs.
func LerGetCmdLineArgs() []string {
	return NativeGetCmdLineArgs()
}

// LerGetTestCmdLineArgs is the previous-generation name for TestArgs.
//
// Deprecated: use Current().TestArgs.
func LerGetTestCmdLineArgs() []string {
	return NativeGetTestCmdLineArgs()
}
