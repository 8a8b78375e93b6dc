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
	"strings"
	"syscall"
	"testing"

	sgabi "github.com/google/go-sev-guest/abi"
)

func TestKindFromStatus(t *testing.T) {
	tcs := []struct {
		status sgabi.SevFirmwareStatus
		want   Kind
	}{
		{0x01, InvalidPlatformState},
		{0x02, InvalidGuestState},
		{0x03, InvalidConfig},
		{0x04, InvalidLength},
		{0x05, AlreadyOwned},
		{0x06, InvalidCertificate},
		{0x07, PolicyFailure},
		{0x08, Inactive},
		{0x09, InvalidAddress},
		{0x0a, BadSignature},
		{0x0b, BadMeasurement},
		{0x0c, AsidOwned},
		{0x0d, InvalidAsid},
		{0x0e, WbinvdRequired},
		{0x0f, DfFlushRequired},
		{0x10, InvalidGuest},
		{0x11, InvalidCommand},
		{0x13, HwErrorPlatform},
		{0x14, HwErrorUnsafe},
		{0x15, Unsupported},
		{0x16, InvalidParam},
		{0x17, ResourceLimit},
		{0x18, SecureDataInvalid},
		{0x19, InvalidPageSize},
		{0x1a, InvalidPageState},
		{0x1b, InvalidMdataEntry},
		{0x1c, InvalidPageOwner},
		{0x1d, AeadOverflow},
		{0x1f, RbModeExited},
		{0x20, RmpInitRequired},
		{0x21, BadSvn},
		{0x22, BadVersion},
		{0x23, ShutdownRequired},
		{0x24, UpdateFailed},
		{0x25, RestoreRequired},
		{0x26, RmpInitFailed},
		{0x27, InvalidKey},
		// Codes that are reserved, not errors, or beyond the table.
		{0x00, UnrecognizedCode},
		{0x12, UnrecognizedCode},
		{0x1e, UnrecognizedCode},
		{0x28, UnrecognizedCode},
		{0xff, UnrecognizedCode},
		{0xffffffff, UnrecognizedCode},
	}
	for _, tc := range tcs {
		t.Run(fmt.Sprintf("0x%x", int(tc.status)), func(t *testing.T) {
			if got := KindFromStatus(tc.status); got != tc.want {
				t.Errorf("KindFromStatus(0x%x) = %v, want %v", int(tc.status), got, tc.want)
			}
		})
	}
}

func TestKindNamesAreComplete(t *testing.T) {
	for k := InvalidPlatformState; k <= UnrecognizedCode; k++ {
		if strings.HasPrefix(k.String(), "Kind(") {
			t.Errorf("Kind %d has no name", int(k))
		}
		if k.Description() == k.String() {
			t.Errorf("Kind %v has no description", k)
		}
	}
	if got, want := Kind(0).String(), "Kind(0)"; got != want {
		t.Errorf("Kind(0).String() = %q, want %q", got, want)
	}
}

func TestFirmwareError(t *testing.T) {
	err := error(&FirmwareError{Command: CmdLaunchStart, Status: 0x07})
	if k, ok := KindOf(err); !ok || k != PolicyFailure {
		t.Errorf("KindOf(%v) = %v, %v, want %v, true", err, k, ok, PolicyFailure)
	}
	wrapped := fmt.Errorf("launch: %w", err)
	var fwErr *sgabi.SevFirmwareErr
	if !errors.As(wrapped, &fwErr) {
		t.Fatalf("errors.As(%v, *SevFirmwareErr) = false, want true", wrapped)
	}
	if fwErr.Status != 0x07 {
		t.Errorf("SevFirmwareErr.Status = 0x%x, want 0x07", int(fwErr.Status))
	}
	if !strings.Contains(err.Error(), "KVM_SEV_LAUNCH_START") {
		t.Errorf("%q does not name the command", err.Error())
	}
}

func TestTransportError(t *testing.T) {
	err := error(&TransportError{Command: CmdInit, Err: syscall.EBADF})
	if _, ok := KindOf(err); ok {
		t.Errorf("KindOf(%v) found a kind for a transport error", err)
	}
	if !errors.Is(err, syscall.EBADF) {
		t.Errorf("errors.Is(%v, EBADF) = false, want true", err)
	}
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("errors.As(%v, *TransportError) = false", err)
	}
	if errno, ok := terr.Errno(); !ok || errno != syscall.EBADF {
		t.Errorf("Errno() = %v, %v, want EBADF, true", errno, ok)
	}
	if _, ok := (&TransportError{Err: errors.New("not an errno")}).Errno(); ok {
		t.Error("Errno() found an errno in a non-errno error")
	}
}
