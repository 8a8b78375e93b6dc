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

// Package cpuid derives memory encryption parameters from CPUID leaves.
package cpuid

import (
	"errors"
	"fmt"
)

const (
	// EncryptedMemoryLeaf is the AMD memory encryption capabilities leaf.
	EncryptedMemoryLeaf = 0x8000001f
	// cbitMask selects EBX[5:0], the physical address bit that marks a page encrypted.
	cbitMask = 0x3f
)

// ErrLeafNotFound is returned when a Source has no entry for the requested leaf.
var ErrLeafNotFound = errors.New("cpuid leaf not found")

// Entry is the register output of one CPUID function and index.
type Entry struct {
	Function uint32
	Index    uint32
	EAX      uint32
	EBX      uint32
	ECX      uint32
	EDX      uint32
}

// Source answers CPUID queries.
type Source interface {
	Leaf(function, index uint32) (Entry, error)
}

// CBitPosition returns the C-bit position reported by src.
func CBitPosition(src Source) (uint32, error) {
	e, err := src.Leaf(EncryptedMemoryLeaf, 0)
	if err != nil {
		return 0, fmt.Errorf("could not query CPUID 0x%x: %w", EncryptedMemoryLeaf, err)
	}
	return e.EBX & cbitMask, nil
}

// Static is a fixed set of CPUID entries.
type Static []Entry

// Leaf returns the entry for function and index.
func (s Static) Leaf(function, index uint32) (Entry, error) {
	for _, e := range s {
		if e.Function == function && e.Index == index {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: 0x%x index %d", ErrLeafNotFound, function, index)
}
