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

package boot

import (
	"fmt"

	"github.com/google/sev-launch/guestmem"
	"github.com/google/sev-launch/kvm"
)

// KVMHost creates guests through /dev/kvm.
type KVMHost struct{}

// CreateGuest implements Host.
func (KVMHost) CreateGuest(memSize uint64) (*Guest, error) {
	sys, err := kvm.OpenSystem()
	if err != nil {
		return nil, err
	}
	g := &Guest{CPUID: sys, Closers: []func() error{sys.Close}}
	vm, err := sys.CreateVM()
	if err != nil {
		return nil, cleanup(g, err)
	}
	g.VM = vm
	g.Closers = append([]func() error{vm.Close}, g.Closers...)
	mem, err := guestmem.NewAnonymous(0, memSize)
	if err != nil {
		return nil, cleanup(g, err)
	}
	g.Memory = mem
	// The VM must release its memory slot before the mapping goes away.
	g.Closers = []func() error{vm.Close, mem.Close, sys.Close}
	host, err := mem.HostAddress(0, memSize)
	if err != nil {
		return nil, cleanup(g, err)
	}
	if err := vm.SetUserMemoryRegion(0, 0, memSize, host); err != nil {
		return nil, cleanup(g, fmt.Errorf("could not map guest memory: %w", err))
	}
	return g, nil
}

func cleanup(g *Guest, err error) error {
	g.Close()
	return err
}
