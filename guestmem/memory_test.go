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

package guestmem

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func TestIntersect(t *testing.T) {
	tcs := []struct {
		name  string
		left  Range
		right Range
		want  Range
	}{
		{
			name:  "non-overlapping left < right",
			left:  Range{Start: 0, Length: 10},
			right: Range{Start: 10, Length: 10},
		},
		{
			name:  "non-overlapping right < left",
			left:  Range{Start: 10, Length: 10},
			right: Range{Start: 0, Length: 10},
		},
		{
			name:  "overlapping left < right",
			left:  Range{Start: 0, Length: 11},
			right: Range{Start: 10, Length: 10},
			want:  Range{Start: 10, Length: 1},
		},
		{
			name:  "contained",
			left:  Range{Start: 0, Length: 100},
			right: Range{Start: 10, Length: 10},
			want:  Range{Start: 10, Length: 10},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.left.intersect(tc.right)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("%v.intersect(%v) returned diff (-want +got):\n%s", tc.left, tc.right, diff)
			}
		})
	}
}

func twoRegions(t *testing.T) (*Memory, []byte, []byte) {
	t.Helper()
	low := make([]byte, 0x100)
	high := make([]byte, 0x100)
	// Deliberately out of order; New sorts them.
	m, err := New(Region{Start: 0x1100, Host: high}, Region{Start: 0x1000, Host: low})
	if err != nil {
		t.Fatal(err)
	}
	return m, low, high
}

func TestNewOverlap(t *testing.T) {
	_, err := New(Region{Start: 0, Host: make([]byte, 0x20)}, Region{Start: 0x10, Host: make([]byte, 0x20)})
	if err == nil {
		t.Error("New(overlapping) = nil, want error")
	}
}

func TestReadWriteAcrossRegions(t *testing.T) {
	m, low, high := twoRegions(t)
	if got := m.Size(); got != 0x200 {
		t.Errorf("Size() = 0x%x, want 0x200", got)
	}
	data := bytes.Repeat([]byte{0x5a}, 0x20)
	if err := m.WriteSlice(data, 0x10f0); err != nil {
		t.Fatalf("WriteSlice() = %v", err)
	}
	if !bytes.Equal(low[0xf0:], data[:0x10]) || !bytes.Equal(high[:0x10], data[0x10:]) {
		t.Error("WriteSlice did not split the write across both regions")
	}
	got := make([]byte, 0x20)
	if err := m.ReadSlice(got, 0x10f0); err != nil {
		t.Fatalf("ReadSlice() = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadSlice() = %x, want %x", got, data)
	}
}

func TestReadExactFrom(t *testing.T) {
	m, low, _ := twoRegions(t)
	if err := m.ReadExactFrom(0x1000, bytes.NewReader([]byte("kernel")), 6); err != nil {
		t.Fatalf("ReadExactFrom() = %v", err)
	}
	if string(low[:6]) != "kernel" {
		t.Errorf("guest memory = %q, want %q", low[:6], "kernel")
	}
	if err := m.ReadExactFrom(0x1000, bytes.NewReader([]byte("short")), 6); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadExactFrom(short source) = %v, want %v", err, io.ErrUnexpectedEOF)
	}
	if err := m.ReadExactFrom(0x11f0, bytes.NewReader(make([]byte, 0x20)), 0x20); !errors.Is(err, ErrUnmapped) {
		t.Errorf("ReadExactFrom(past end) = %v, want %v", err, ErrUnmapped)
	}
}

func TestHostAddress(t *testing.T) {
	m, low, _ := twoRegions(t)
	got, err := m.HostAddress(0x1010, 0x20)
	if err != nil {
		t.Fatalf("HostAddress() = %v", err)
	}
	if want := uintptr(unsafe.Pointer(&low[0x10])); got != want {
		t.Errorf("HostAddress(0x1010) = 0x%x, want 0x%x", got, want)
	}
	if _, err := m.HostAddress(0x10f0, 0x20); !errors.Is(err, ErrUnmapped) {
		t.Errorf("HostAddress(split range) = %v, want %v", err, ErrUnmapped)
	}
	if _, err := m.HostAddress(0x2000, 0x10); !errors.Is(err, ErrUnmapped) {
		t.Errorf("HostAddress(unmapped) = %v, want %v", err, ErrUnmapped)
	}
}
