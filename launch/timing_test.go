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

package launch

import (
	"testing"
	"time"
)

func TestTimestampSince(t *testing.T) {
	start := Timestamp{Wall: time.Now().Add(-time.Second), CPU: processCPUTime()}
	wall, cpu := start.Since()
	if wall < time.Second {
		t.Errorf("Since() wall = %v, want at least 1s", wall)
	}
	if cpu < 0 {
		t.Errorf("Since() cpu = %v, want non-negative", cpu)
	}
}

func TestContextStartDefaultsToNow(t *testing.T) {
	before := time.Now()
	c, err := New(nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if c.created.Wall.Before(before) {
		t.Errorf("created = %v, want no earlier than %v", c.created.Wall, before)
	}
	fixed := Timestamp{Wall: before.Add(-time.Hour)}
	c, err = New(nil, Options{Start: fixed})
	if err != nil {
		t.Fatal(err)
	}
	if c.created != fixed {
		t.Errorf("New(Start: %v) created = %v, want %v", fixed, c.created, fixed)
	}
}
