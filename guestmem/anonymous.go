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

//go:build unix

package guestmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NewAnonymous returns size bytes of guest memory at start, backed by a private anonymous host
// mapping. Close releases the mapping.
func NewAnonymous(start, size uint64) (*Memory, error) {
	host, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("could not map 0x%x bytes of guest memory: %w", size, err)
	}
	m, err := New(Region{Start: start, Host: host})
	if err != nil {
		unix.Munmap(host)
		return nil, err
	}
	m.unmap = append(m.unmap, func() error { return unix.Munmap(host) })
	return m, nil
}
