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
	"errors"
	"fmt"
	"syscall"

	sgabi "github.com/google/go-sev-guest/abi"
)

var (
	// ErrInvalidPlatformState is matched by every sequencing error, i.e., an operation invoked
	// while the guest context is in a state that doesn't allow it.
	ErrInvalidPlatformState = errors.New("invalid platform state")
	// ErrEmptyRegion is returned when asked to encrypt a zero-length region.
	ErrEmptyRegion = errors.New("memory region is empty")
	// ErrRegionTooLarge is returned when an aligned region does not fit the 32-bit ABI length.
	ErrRegionTooLarge = errors.New("memory region is too large")
	// ErrUnalignedHostAddress is returned when guest memory is backed by a host buffer that is not
	// BlockSize aligned relative to its guest physical address.
	ErrUnalignedHostAddress = errors.New("host address is not block aligned")
)

// Kinded is implemented by errors that carry a platform error Kind.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf returns the Kind of the first error in err's chain that has one.
func KindOf(err error) (Kind, bool) {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind(), true
	}
	return 0, false
}

// FirmwareError is returned when the platform rejected a submitted command with a status code.
type FirmwareError struct {
	Command CommandID
	Status  sgabi.SevFirmwareStatus
}

// Kind returns the classification of the error's status code.
func (e *FirmwareError) Kind() Kind { return KindFromStatus(e.Status) }

func (e *FirmwareError) Error() string {
	k := e.Kind()
	return fmt.Sprintf("%v failed with firmware status 0x%x (%v): %s", e.Command, int(e.Status), k,
		k.Description())
}

// Unwrap exposes the status as go-sev-guest's firmware error type.
func (e *FirmwareError) Unwrap() error {
	return &sgabi.SevFirmwareErr{Status: e.Status}
}

// TransportError is returned when the command submission itself failed without the platform
// reporting a status code. Err is normally a syscall.Errno from the ioctl.
type TransportError struct {
	Command CommandID
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v submission failed: %v", e.Command, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error { return e.Err }

// Errno returns the system error number of the failed submission, if there is one.
func (e *TransportError) Errno() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}
