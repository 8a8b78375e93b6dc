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

// Package kvm provides the host kernel handles a SEV launch needs: the platform security
// processor device, the KVM system device, and a VM that routes memory encryption commands.
package kvm

import (
	"errors"
	"fmt"
	"os"
)

// DefaultDevicePath is the AMD secure processor device node.
const DefaultDevicePath = "/dev/sev"

// ErrUnsupported is returned by every KVM operation on platforms without KVM.
var ErrUnsupported = errors.New("kvm is not supported on this platform")

// Device is an open handle to the platform security processor device.
type Device struct {
	f *os.File
}

// OpenDevice opens the platform device at path for reading and writing.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open SEV device: %w", err)
	}
	return &Device{f: f}, nil
}

// Fd returns the device's file descriptor.
func (d *Device) Fd() uintptr { return d.f.Fd() }

// Close releases the device.
func (d *Device) Close() error { return d.f.Close() }
