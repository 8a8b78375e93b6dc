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

// Package fakeplatform provides an in-memory SEV platform that implements sev.Router, for tests.
package fakeplatform

import (
	"syscall"

	sgabi "github.com/google/go-sev-guest/abi"
	"github.com/google/sev-launch/sev"
)

// Response is a canned failure for a command. A zero Status with a nil Err is success.
type Response struct {
	Status sgabi.SevFirmwareStatus
	// Err is the transport error. It defaults to EIO when Status is non-zero.
	Err error
}

// Platform records submitted commands and answers them like firmware that accepts everything.
type Platform struct {
	// Handle is assigned to the guest on LAUNCH_START.
	Handle uint32
	// Measurement is returned by LAUNCH_MEASURE.
	Measurement sev.Measurement
	// Responses holds canned failures by command.
	Responses map[sev.CommandID]Response

	// Submitted lists the IDs of every command received, including failed ones.
	Submitted []sev.CommandID
	// SevFds lists the device descriptor each command was routed with.
	SevFds []uintptr
	// Started is a copy of the last LAUNCH_START command received.
	Started *sev.LaunchStartCmd
	// Updates lists every accepted LAUNCH_UPDATE_DATA region.
	Updates []sev.LaunchUpdateDataCmd
}

// EncryptOp implements sev.Router.
func (p *Platform) EncryptOp(sevFd uintptr, cmd sev.Command) (sgabi.SevFirmwareStatus, error) {
	p.Submitted = append(p.Submitted, cmd.ID())
	p.SevFds = append(p.SevFds, sevFd)
	if r, ok := p.Responses[cmd.ID()]; ok && (r.Status != sev.StatusSuccess || r.Err != nil) {
		if r.Err == nil {
			return r.Status, syscall.EIO
		}
		return r.Status, r.Err
	}
	switch c := cmd.(type) {
	case *sev.LaunchStartCmd:
		c.Handle = p.Handle
		started := *c
		p.Started = &started
	case *sev.LaunchUpdateDataCmd:
		p.Updates = append(p.Updates, *c)
	case *sev.LaunchMeasureCmd:
		c.Measurement = p.Measurement
	}
	return sev.StatusSuccess, nil
}

// Device is a fake platform device handle.
type Device struct {
	FD       uintptr
	CloseErr error
	Closed   bool
}

// Fd returns FD.
func (d *Device) Fd() uintptr { return d.FD }

// Close marks the device closed and returns CloseErr.
func (d *Device) Close() error {
	d.Closed = true
	return d.CloseErr
}
