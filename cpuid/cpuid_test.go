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

package cpuid

import (
	"errors"
	"testing"
)

func TestCBitPosition(t *testing.T) {
	tcs := []struct {
		name    string
		src     Static
		want    uint32
		wantErr error
	}{
		{
			name: "milan",
			src:  Static{{Function: EncryptedMemoryLeaf, EAX: 0x1b, EBX: 0x4033}},
			want: 51,
		},
		{
			name: "upper bits ignored",
			src:  Static{{Function: EncryptedMemoryLeaf, EBX: 0xffffffef}},
			want: 47,
		},
		{
			name:    "missing",
			src:     Static{{Function: 0x1}},
			wantErr: ErrLeafNotFound,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CBitPosition(tc.src)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("CBitPosition() = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("CBitPosition() = %d, want %d", got, tc.want)
			}
		})
	}
}
