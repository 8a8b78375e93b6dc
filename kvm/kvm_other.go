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

//go:build !linux

package kvm

import (
	sgabi "github.com/google/go-sev-guest/abi"
	"github.com/google/sev-launch/cpuid"
	"github.com/google/sev-launch/sev"
)

// System is unavailable without KVM.
type System struct{}

// OpenSystem returns ErrUnsupported.
func OpenSystem() (*System, error) { return nil, ErrUnsupported }

// Close does nothing.
func (*System) Close() error { return nil }

// Leaf returns ErrUnsupported.
func (*System) Leaf(uint32, uint32) (cpuid.Entry, error) { return cpuid.Entry{}, ErrUnsupported }

// CreateVM returns ErrUnsupported.
func (*System) CreateVM() (*VM, error) { return nil, ErrUnsupported }

// VM is unavailable without KVM.
type VM struct{}

// Close does nothing.
func (*VM) Close() error { return nil }

// SetUserMemoryRegion returns ErrUnsupported.
func (*VM) SetUserMemoryRegion(uint32, uint64, uint64, uintptr) error { return ErrUnsupported }

// EncryptOp returns ErrUnsupported.
func (*VM) EncryptOp(uintptr, sev.Command) (sgabi.SevFirmwareStatus, error) {
	return sev.StatusSuccess, ErrUnsupported
}
