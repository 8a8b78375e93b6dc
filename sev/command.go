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
	sgabi "github.com/google/go-sev-guest/abi"
	"github.com/google/logger"
)

// Command is a typed memory encryption command. A Router converts it to the KvmSevCmd ABI
// envelope only for the duration of the privileged call.
type Command interface {
	ID() CommandID
}

// InitCmd requests KVM_SEV_INIT. It has no payload.
type InitCmd struct{}

// ID returns CmdInit.
func (*InitCmd) ID() CommandID { return CmdInit }

// EsInitCmd requests KVM_SEV_ES_INIT. It has no payload.
type EsInitCmd struct{}

// ID returns CmdEsInit.
func (*EsInitCmd) ID() CommandID { return CmdEsInit }

// SnpInitCmd requests KVM_SEV_SNP_INIT.
type SnpInitCmd struct {
	Flags uint64
}

// ID returns CmdSnpInit.
func (*SnpInitCmd) ID() CommandID { return CmdSnpInit }

// LaunchStartCmd requests KVM_SEV_LAUNCH_START. Handle is written by the platform.
type LaunchStartCmd struct {
	Policy Policy
	// DHCert is the guest owner's Diffie-Hellman certificate. Empty means none.
	DHCert []byte
	// Session is the guest owner's launch session blob. Empty means none.
	Session []byte
	// Handle is the guest handle assigned by the platform on success.
	Handle uint32
}

// ID returns CmdLaunchStart.
func (*LaunchStartCmd) ID() CommandID { return CmdLaunchStart }

// LaunchUpdateDataCmd requests KVM_SEV_LAUNCH_UPDATE_DATA over host memory that backs the guest.
// HostAddr and Len must both be multiples of BlockSize.
type LaunchUpdateDataCmd struct {
	HostAddr uintptr
	Len      uint32
}

// ID returns CmdLaunchUpdateData.
func (*LaunchUpdateDataCmd) ID() CommandID { return CmdLaunchUpdateData }

// LaunchUpdateVmsaCmd requests KVM_SEV_LAUNCH_UPDATE_VMSA. It has no payload.
type LaunchUpdateVmsaCmd struct{}

// ID returns CmdLaunchUpdateVmsa.
func (*LaunchUpdateVmsaCmd) ID() CommandID { return CmdLaunchUpdateVmsa }

// LaunchMeasureCmd requests KVM_SEV_LAUNCH_MEASURE. Measurement is written by the platform.
type LaunchMeasureCmd struct {
	Measurement Measurement
}

// ID returns CmdLaunchMeasure.
func (*LaunchMeasureCmd) ID() CommandID { return CmdLaunchMeasure }

// LaunchFinishCmd requests KVM_SEV_LAUNCH_FINISH. It has no payload.
type LaunchFinishCmd struct{}

// ID returns CmdLaunchFinish.
func (*LaunchFinishCmd) ID() CommandID { return CmdLaunchFinish }

// Router submits a command against the VM that owns the encrypted guest context. On failure the
// returned status is the platform status code from the envelope, or StatusSuccess if the platform
// did not report one.
type Router interface {
	EncryptOp(sevFd uintptr, cmd Command) (sgabi.SevFirmwareStatus, error)
}

// Dispatcher submits commands through a Router on behalf of one open platform device.
type Dispatcher struct {
	Router Router
	// SevFd is the file descriptor of the open platform device.
	SevFd uintptr
}

// Submit issues cmd once. It never retries: a failure means the platform may have already
// advanced its own state, so only the caller can decide to restart the launch from scratch.
func (d *Dispatcher) Submit(cmd Command) error {
	status, err := d.Router.EncryptOp(d.SevFd, cmd)
	if err == nil {
		return nil
	}
	if status != StatusSuccess {
		ferr := &FirmwareError{Command: cmd.ID(), Status: status}
		logger.V(1).Infof("%v", ferr)
		return ferr
	}
	return &TransportError{Command: cmd.ID(), Err: err}
}
