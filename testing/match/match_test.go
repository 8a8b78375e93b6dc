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

package match

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	tcs := []struct {
		err  error
		want string
		ok   bool
	}{
		{ok: true},
		{err: errors.New("boom"), ok: false},
		{want: "boom", ok: false},
		{err: errors.New("launch failed: boom"), want: "boom", ok: true},
		{err: errors.New("launch failed"), want: "boom", ok: false},
	}
	for _, tc := range tcs {
		if got := Error(tc.err, tc.want); got != tc.ok {
			t.Errorf("Error(%v, %q) = %v, want %v", tc.err, tc.want, got, tc.ok)
		}
	}
}

func TestErrorAll(t *testing.T) {
	err := errors.New("first; third")
	if !ErrorAll(err, "first", "third") {
		t.Errorf("ErrorAll(%v, first, third) = false, want true", err)
	}
	if ErrorAll(err, "first", "second") {
		t.Errorf("ErrorAll(%v, first, second) = true, want false", err)
	}
	if ErrorAll(err) || !ErrorAll(nil) || ErrorAll(nil, "first") {
		t.Error("ErrorAll mishandles empty expectations")
	}
}
