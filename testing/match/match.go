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

// Package match provides error matchers for tests.
package match

import (
	"strings"
)

// Error returns true iff err's message contains wantErr. An empty wantErr means err must be nil.
func Error(err error, wantErr string) bool {
	if err == nil || wantErr == "" {
		return err == nil && wantErr == ""
	}
	return strings.Contains(err.Error(), wantErr)
}

// ErrorAll returns true iff err's message contains every one of wantErrs. No wantErrs means err
// must be nil.
func ErrorAll(err error, wantErrs ...string) bool {
	if err == nil {
		return len(wantErrs) == 0
	}
	for _, want := range wantErrs {
		if !strings.Contains(err.Error(), want) {
			return false
		}
	}
	return len(wantErrs) != 0
}
