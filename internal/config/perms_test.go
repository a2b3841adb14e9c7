// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package config_test

import "runtime"

func runtimeSupportsPerms() bool { return runtime.GOOS != "windows" }
