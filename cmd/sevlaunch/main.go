// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// The sevlaunch tool launches an AMD SEV guest through KVM and reports its launch measurement.
package main

import (
	"context"
	"os"

	"github.com/google/logger"
	"github.com/google/sev-launch/cmd"
)

func main() {
	l := logger.Init("sevlaunch", false, false, os.Stderr)
	err := cmd.MakeApp(context.Background(), &cmd.AppComponents{}).Execute()
	l.Close()
	if err != nil {
		os.Exit(1)
	}
}
