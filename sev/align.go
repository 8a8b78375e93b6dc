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

package sev

import (
	"fmt"
	"math"
)

// BlockSize is the alignment LAUNCH_UPDATE_DATA requires of both address and length.
const BlockSize = 16

// Region is a BlockSize-aligned superset of a requested guest memory range.
type Region struct {
	// Addr and Len describe the requested range.
	Addr uint64
	Len  uint64
	// AlignedAddr and AlignedLen describe the range that gets submitted.
	AlignedAddr uint64
	AlignedLen  uint32
}

// Lead returns the number of bytes in [AlignedAddr, Addr).
func (r Region) Lead() uint64 { return r.Addr - r.AlignedAddr }

// Trail returns the number of bytes in [Addr+Len, AlignedAddr+AlignedLen).
func (r Region) Trail() uint64 { return r.AlignedAddr + uint64(r.AlignedLen) - (r.Addr + r.Len) }

// AlignRegion returns the smallest BlockSize-aligned region covering [addr, addr+length).
func AlignRegion(addr, length uint64) (Region, error) {
	if length == 0 {
		return Region{}, ErrEmptyRegion
	}
	if addr > math.MaxUint64-length {
		return Region{}, fmt.Errorf("region [0x%x, +0x%x) overflows the address space: %w", addr, length,
			ErrRegionTooLarge)
	}
	lead := addr % BlockSize
	alignedLen := length + lead
	if alignedLen > math.MaxUint32 {
		return Region{}, fmt.Errorf("aligned length 0x%x exceeds 32 bits: %w", alignedLen, ErrRegionTooLarge)
	}
	if rem := alignedLen % BlockSize; rem != 0 {
		alignedLen += BlockSize - rem
	}
	if alignedLen > math.MaxUint32 {
		return Region{}, fmt.Errorf("aligned length 0x%x exceeds 32 bits: %w", alignedLen, ErrRegionTooLarge)
	}
	return Region{
		Addr:        addr,
		Len:         length,
		AlignedAddr: addr - lead,
		AlignedLen:  uint32(alignedLen),
	}, nil
}
