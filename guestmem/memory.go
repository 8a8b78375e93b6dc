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

// Package guestmem provides guest physical memory backed by host buffers, with the copy and
// address-translation operations the launch sequence needs.
package guestmem

import (
	"errors"
	"fmt"
	"io"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

// ErrUnmapped is returned when a guest physical range is not wholly backed by host memory.
var ErrUnmapped = errors.New("guest memory range is not mapped")

// Range is a span of guest physical addresses.
type Range struct {
	Start  uint64
	Length uint64
}

func (r Range) end() uint64 { return r.Start + r.Length }

func (r Range) intersect(other Range) Range {
	if r.Start >= other.end() || other.Start >= r.end() {
		return Range{}
	}
	start := max(r.Start, other.Start)
	end := min(r.end(), other.end())
	if end == start { // Only allow a single representation of zero.
		return Range{}
	}
	return Range{Start: start, Length: end - start}
}

// Region is a span of guest physical memory and the host buffer that backs it.
type Region struct {
	Start uint64
	Host  []byte
}

func (r *Region) span() Range { return Range{Start: r.Start, Length: uint64(len(r.Host))} }

// Memory is a set of non-overlapping regions of guest physical memory.
type Memory struct {
	regions []Region
	unmap   []func() error
}

// New returns guest memory made of the given regions.
func New(regions ...Region) (*Memory, error) {
	sorted := slices.Clone(regions)
	slices.SortFunc(sorted, func(a, b Region) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start == b.Start:
			return 0
		}
		return 1
	})
	for i := range sorted {
		if uint64(len(sorted[i].Host)) > ^uint64(0)-sorted[i].Start {
			return nil, fmt.Errorf("region at 0x%x of size 0x%x wraps the address space", sorted[i].Start,
				len(sorted[i].Host))
		}
		if i > 0 && sorted[i-1].span().intersect(sorted[i].span()).Length != 0 {
			return nil, fmt.Errorf("region at 0x%x overlaps region at 0x%x", sorted[i].Start,
				sorted[i-1].Start)
		}
	}
	return &Memory{regions: sorted}, nil
}

// Size returns the total number of mapped guest bytes.
func (m *Memory) Size() uint64 {
	var total uint64
	for i := range m.regions {
		total += uint64(len(m.regions[i].Host))
	}
	return total
}

// Close releases any host mappings Memory owns.
func (m *Memory) Close() error {
	var err error
	for _, unmap := range m.unmap {
		err = multierr.Append(err, unmap())
	}
	m.unmap = nil
	m.regions = nil
	return err
}

// backing returns the host buffers backing [addr, addr+length) in address order, or ErrUnmapped if
// any byte of the range has no backing.
func (m *Memory) backing(addr, length uint64) ([][]byte, error) {
	want := Range{Start: addr, Length: length}
	if length > ^uint64(0)-addr {
		return nil, fmt.Errorf("%w: [0x%x, +0x%x) wraps the address space", ErrUnmapped, addr, length)
	}
	var result [][]byte
	next := addr
	for i := range m.regions {
		r := &m.regions[i]
		part := r.span().intersect(want)
		if part.Length == 0 {
			continue
		}
		if part.Start != next {
			break
		}
		off := part.Start - r.Start
		result = append(result, r.Host[off:off+part.Length])
		next = part.end()
	}
	if next != want.end() {
		return nil, fmt.Errorf("%w: [0x%x, 0x%x) has no backing at 0x%x", ErrUnmapped, addr,
			want.end(), next)
	}
	return result, nil
}

// ReadExactFrom copies exactly n bytes from src into guest memory at addr.
func (m *Memory) ReadExactFrom(addr uint64, src io.Reader, n uint64) error {
	dst, err := m.backing(addr, n)
	if err != nil {
		return err
	}
	for _, d := range dst {
		if _, err := io.ReadFull(src, d); err != nil {
			return fmt.Errorf("could not fill guest memory at 0x%x: %w", addr, err)
		}
	}
	return nil
}

// ReadSlice copies guest memory at addr into buf.
func (m *Memory) ReadSlice(buf []byte, addr uint64) error {
	src, err := m.backing(addr, uint64(len(buf)))
	if err != nil {
		return err
	}
	for _, s := range src {
		buf = buf[copy(buf, s):]
	}
	return nil
}

// WriteSlice copies buf into guest memory at addr.
func (m *Memory) WriteSlice(buf []byte, addr uint64) error {
	dst, err := m.backing(addr, uint64(len(buf)))
	if err != nil {
		return err
	}
	for _, d := range dst {
		buf = buf[copy(d, buf):]
	}
	return nil
}

// HostAddress returns the host virtual address of guest physical addr. The whole range
// [addr, addr+length) must be backed by a single host buffer, since the address is handed to the
// kernel as one contiguous span.
func (m *Memory) HostAddress(addr, length uint64) (uintptr, error) {
	parts, err := m.backing(addr, max(length, 1))
	if err != nil {
		return 0, err
	}
	if len(parts) != 1 {
		return 0, fmt.Errorf("%w: [0x%x, +0x%x) spans %d host mappings", ErrUnmapped, addr, length,
			len(parts))
	}
	return uintptr(unsafe.Pointer(&parts[0][0])), nil
}
