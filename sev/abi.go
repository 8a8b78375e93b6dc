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

import "fmt"

// Types and values specified by the Linux KVM memory encryption API
// https://docs.kernel.org/virt/kvm/x86/amd-memory-encryption.html

// CommandID is the KVM_MEMORY_ENCRYPT_OP sub-command identifier.
type CommandID uint32

const (
	// CmdInit initializes the SEV platform context for the VM.
	CmdInit CommandID = iota
	// CmdEsInit initializes the SEV-ES platform context for the VM.
	CmdEsInit
	// CmdLaunchStart creates the guest encryption context.
	CmdLaunchStart
	// CmdLaunchUpdateData encrypts a region of guest memory in place.
	CmdLaunchUpdateData
	// CmdLaunchUpdateVmsa encrypts the vCPU save areas.
	CmdLaunchUpdateVmsa
	// CmdLaunchSecret injects a guest owner secret. Not driven by this package.
	CmdLaunchSecret
	// CmdLaunchMeasure retrieves the launch measurement.
	CmdLaunchMeasure
	// CmdLaunchFinish completes the launch flow.
	CmdLaunchFinish
	// CmdSendStart begins migrating the guest out. Reserved.
	CmdSendStart
	// CmdSendUpdateData migrates a region out. Reserved.
	CmdSendUpdateData
	// CmdSendUpdateVmsa migrates a save area out. Reserved.
	CmdSendUpdateVmsa
	// CmdSendFinish completes an outgoing migration. Reserved.
	CmdSendFinish
	// CmdReceiveStart begins migrating the guest in. Reserved.
	CmdReceiveStart
	// CmdReceiveUpdateData migrates a region in. Reserved.
	CmdReceiveUpdateData
	// CmdReceiveUpdateVmsa migrates a save area in. Reserved.
	CmdReceiveUpdateVmsa
	// CmdReceiveFinish completes an incoming migration. Reserved.
	CmdReceiveFinish
	// CmdGuestStatus queries the guest status.
	CmdGuestStatus
)

// CmdSnpInit initializes the SEV-SNP platform context for the VM.
const CmdSnpInit CommandID = 256

var commandNames = map[CommandID]string{
	CmdInit:              "KVM_SEV_INIT",
	CmdEsInit:            "KVM_SEV_ES_INIT",
	CmdLaunchStart:       "KVM_SEV_LAUNCH_START",
	CmdLaunchUpdateData:  "KVM_SEV_LAUNCH_UPDATE_DATA",
	CmdLaunchUpdateVmsa:  "KVM_SEV_LAUNCH_UPDATE_VMSA",
	CmdLaunchSecret:      "KVM_SEV_LAUNCH_SECRET",
	CmdLaunchMeasure:     "KVM_SEV_LAUNCH_MEASURE",
	CmdLaunchFinish:      "KVM_SEV_LAUNCH_FINISH",
	CmdSendStart:         "KVM_SEV_SEND_START",
	CmdSendUpdateData:    "KVM_SEV_SEND_UPDATE_DATA",
	CmdSendUpdateVmsa:    "KVM_SEV_SEND_UPDATE_VMSA",
	CmdSendFinish:        "KVM_SEV_SEND_FINISH",
	CmdReceiveStart:      "KVM_SEV_RECEIVE_START",
	CmdReceiveUpdateData: "KVM_SEV_RECEIVE_UPDATE_DATA",
	CmdReceiveUpdateVmsa: "KVM_SEV_RECEIVE_UPDATE_VMSA",
	CmdReceiveFinish:     "KVM_SEV_RECEIVE_FINISH",
	CmdGuestStatus:       "KVM_SEV_GUEST_STATUS",
	CmdSnpInit:           "KVM_SEV_SNP_INIT",
}

func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("KVM_SEV_CMD(%d)", uint32(c))
}

// The following structs mirror include/uapi/linux/kvm.h. Field order and padding matter; they
// are passed to the kernel by address.

// KvmSevCmd is struct kvm_sev_cmd, the envelope for every memory encryption command.
type KvmSevCmd struct {
	ID    uint32
	Pad0  uint32
	Data  uint64
	Error uint32
	SevFd uint32
}

// KvmSevLaunchStart is struct kvm_sev_launch_start.
type KvmSevLaunchStart struct {
	Handle       uint32
	Policy       uint32
	DhUaddr      uint64
	DhLen        uint32
	Pad0         uint32
	SessionUaddr uint64
	SessionLen   uint32
	Pad1         uint32
}

// KvmSevLaunchUpdateData is struct kvm_sev_launch_update_data.
type KvmSevLaunchUpdateData struct {
	Uaddr uint64
	Len   uint32
	Pad0  uint32
}

// KvmSevLaunchMeasure is struct kvm_sev_launch_measure.
type KvmSevLaunchMeasure struct {
	Uaddr uint64
	Len   uint32
	Pad0  uint32
}

// KvmSnpInit is struct kvm_snp_init.
type KvmSnpInit struct {
	Flags uint64
}
