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
	"fmt"

	sgabi "github.com/google/go-sev-guest/abi"
)

// Kind classifies a failed SEV platform command. The set is closed: every platform status code
// maps to exactly one Kind, with UnrecognizedCode covering codes outside the published table.
type Kind int

// The zero Kind is not a valid error classification.
const (
	// InvalidPlatformState is reported when the platform or guest context is in the wrong state for
	// the command. Local sequencing errors share this Kind.
	InvalidPlatformState Kind = iota + 1
	// InvalidGuestState is reported when the guest state is invalid for the command.
	InvalidGuestState
	// InvalidConfig is reported when the platform configuration is invalid.
	InvalidConfig
	// InvalidLength is reported when a memory buffer is too small.
	InvalidLength
	// AlreadyOwned is reported when the platform is already owned.
	AlreadyOwned
	// InvalidCertificate is reported when a certificate is invalid.
	InvalidCertificate
	// PolicyFailure is reported when the guest policy disallows the request.
	PolicyFailure
	// Inactive is reported when the guest is inactive.
	Inactive
	// InvalidAddress is reported when a provided address is invalid.
	InvalidAddress
	// BadSignature is reported when a provided signature is invalid.
	BadSignature
	// BadMeasurement is reported when a provided measurement is invalid.
	BadMeasurement
	// AsidOwned is reported when the ASID is already owned.
	AsidOwned
	// InvalidAsid is reported when the ASID is invalid.
	InvalidAsid
	// WbinvdRequired is reported when a WBINVD instruction must run first.
	WbinvdRequired
	// DfFlushRequired is reported when a DF_FLUSH invocation is required.
	DfFlushRequired
	// InvalidGuest is reported when the guest handle is invalid.
	InvalidGuest
	// InvalidCommand is reported when the command issued is invalid.
	InvalidCommand
	// HwErrorPlatform is reported for a hardware condition after which re-allocating parameter
	// buffers is safe.
	HwErrorPlatform
	// HwErrorUnsafe is reported for a hardware condition after which re-allocating parameter
	// buffers is not safe.
	HwErrorUnsafe
	// Unsupported is reported when a feature is unsupported.
	Unsupported
	// InvalidParam is reported when a parameter is invalid.
	InvalidParam
	// ResourceLimit is reported when the firmware ran out of a resource needed for the command.
	ResourceLimit
	// SecureDataInvalid is reported when part-specific SEV data failed integrity checks.
	SecureDataInvalid
	// InvalidPageSize is reported when the RMP page size is incorrect.
	InvalidPageSize
	// InvalidPageState is reported when the RMP page state is incorrect.
	InvalidPageState
	// InvalidMdataEntry is reported when the metadata entry is invalid.
	InvalidMdataEntry
	// InvalidPageOwner is reported when the page ownership is incorrect.
	InvalidPageOwner
	// AeadOverflow is reported when the AEAD algorithm would have overflowed.
	AeadOverflow
	// RbModeExited is reported when a mailbox mode command was sent while the firmware was in ring
	// buffer mode.
	RbModeExited
	// RmpInitRequired is reported when the RMP must be reinitialized.
	RmpInitRequired
	// BadSvn is reported when the SVN of the provided image is lower than the committed SVN.
	BadSvn
	// BadVersion is reported for firmware version anti-rollback.
	BadVersion
	// ShutdownRequired is reported when an SNP_SHUTDOWN is required to complete the action.
	ShutdownRequired
	// UpdateFailed is reported when an update of firmware state or a guest context page failed.
	UpdateFailed
	// RestoreRequired is reported when installation of the committed firmware image is required.
	RestoreRequired
	// RmpInitFailed is reported when the RMP initialization failed.
	RmpInitFailed
	// InvalidKey is reported when the requested key is invalid, not present, or not allowed.
	InvalidKey
	// UnrecognizedCode is the Kind of any status code outside the published table.
	UnrecognizedCode
)

const (
	// StatusSuccess is the platform status for a successful command.
	StatusSuccess sgabi.SevFirmwareStatus = 0x00
	// StatusActive is the platform status for an already active guest. It is not an error.
	StatusActive sgabi.SevFirmwareStatus = 0x12
)

var kindNames = map[Kind]string{
	InvalidPlatformState: "InvalidPlatformState",
	InvalidGuestState:    "InvalidGuestState",
	InvalidConfig:        "InvalidConfig",
	InvalidLength:        "InvalidLength",
	AlreadyOwned:         "AlreadyOwned",
	InvalidCertificate:   "InvalidCertificate",
	PolicyFailure:        "PolicyFailure",
	Inactive:             "Inactive",
	InvalidAddress:       "InvalidAddress",
	BadSignature:         "BadSignature",
	BadMeasurement:       "BadMeasurement",
	AsidOwned:            "AsidOwned",
	InvalidAsid:          "InvalidAsid",
	WbinvdRequired:       "WbinvdRequired",
	DfFlushRequired:      "DfFlushRequired",
	InvalidGuest:         "InvalidGuest",
	InvalidCommand:       "InvalidCommand",
	HwErrorPlatform:      "HwErrorPlatform",
	HwErrorUnsafe:        "HwErrorUnsafe",
	Unsupported:          "Unsupported",
	InvalidParam:         "InvalidParam",
	ResourceLimit:        "ResourceLimit",
	SecureDataInvalid:    "SecureDataInvalid",
	InvalidPageSize:      "InvalidPageSize",
	InvalidPageState:     "InvalidPageState",
	InvalidMdataEntry:    "InvalidMdataEntry",
	InvalidPageOwner:     "InvalidPageOwner",
	AeadOverflow:         "AeadOverflow",
	RbModeExited:         "RbModeExited",
	RmpInitRequired:      "RmpInitRequired",
	BadSvn:               "BadSvn",
	BadVersion:           "BadVersion",
	ShutdownRequired:     "ShutdownRequired",
	UpdateFailed:         "UpdateFailed",
	RestoreRequired:      "RestoreRequired",
	RmpInitFailed:        "RmpInitFailed",
	InvalidKey:           "InvalidKey",
	UnrecognizedCode:     "UnrecognizedCode",
}

var kindDescriptions = map[Kind]string{
	InvalidPlatformState: "platform state is invalid for this command",
	InvalidGuestState:    "guest state is invalid for this command",
	InvalidConfig:        "platform configuration is invalid",
	InvalidLength:        "memory buffer is too small",
	AlreadyOwned:         "platform is already owned",
	InvalidCertificate:   "certificate is invalid",
	PolicyFailure:        "request is not allowed by guest policy",
	Inactive:             "guest is inactive",
	InvalidAddress:       "address provided is invalid",
	BadSignature:         "provided signature is invalid",
	BadMeasurement:       "provided measurement is invalid",
	AsidOwned:            "ASID is already owned",
	InvalidAsid:          "ASID is invalid",
	WbinvdRequired:       "WBINVD instruction required",
	DfFlushRequired:      "DF_FLUSH invocation required",
	InvalidGuest:         "guest handle is invalid",
	InvalidCommand:       "command issued is invalid",
	HwErrorPlatform:      "hardware condition has occurred affecting the platform; buffers are safe",
	HwErrorUnsafe:        "hardware condition has occurred affecting the platform; buffers are unsafe",
	Unsupported:          "feature is unsupported",
	InvalidParam:         "parameter is invalid",
	ResourceLimit:        "SEV firmware has run out of a resource necessary to complete the command",
	SecureDataInvalid:    "part-specific SEV data failed integrity checks",
	InvalidPageSize:      "RMP: invalid page size",
	InvalidPageState:     "RMP: invalid page state",
	InvalidMdataEntry:    "RMP: invalid metadata entry",
	InvalidPageOwner:     "RMP: invalid page owner",
	AeadOverflow:         "AEAD algorithm would have overflowed",
	RbModeExited:         "mailbox mode command sent while the firmware was in ring buffer mode",
	RmpInitRequired:      "RMP must be reinitialized",
	BadSvn:               "SVN of provided image is lower than the committed SVN",
	BadVersion:           "firmware version anti-rollback",
	ShutdownRequired:     "SNP_SHUTDOWN is required to complete this action",
	UpdateFailed:         "update of the firmware internal state or a guest context page has failed",
	RestoreRequired:      "installation of the committed firmware image required",
	RmpInitFailed:        "RMP initialization failed",
	InvalidKey:           "key requested is invalid, not present, or not allowed",
	UnrecognizedCode:     "status code returned by the SEV device is not recognized",
}

// String returns the name of the Kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Description returns a human readable explanation of the Kind.
func (k Kind) Description() string {
	if desc, ok := kindDescriptions[k]; ok {
		return desc
	}
	return k.String()
}

// KindFromStatus translates a platform status code into its Kind. Callers must not pass
// StatusSuccess or StatusActive; neither is an error and both translate to UnrecognizedCode.
func KindFromStatus(status sgabi.SevFirmwareStatus) Kind {
	switch status {
	case 0x01:
		return InvalidPlatformState
	case 0x02:
		return InvalidGuestState
	case 0x03:
		return InvalidConfig
	case 0x04:
		return InvalidLength
	case 0x05:
		return AlreadyOwned
	case 0x06:
		return InvalidCertificate
	case 0x07:
		return PolicyFailure
	case 0x08:
		return Inactive
	case 0x09:
		return InvalidAddress
	case 0x0a:
		return BadSignature
	case 0x0b:
		return BadMeasurement
	case 0x0c:
		return AsidOwned
	case 0x0d:
		return InvalidAsid
	case 0x0e:
		return WbinvdRequired
	case 0x0f:
		return DfFlushRequired
	case 0x10:
		return InvalidGuest
	case 0x11:
		return InvalidCommand
	case 0x13:
		return HwErrorPlatform
	case 0x14:
		return HwErrorUnsafe
	case 0x15:
		return Unsupported
	case 0x16:
		return InvalidParam
	case 0x17:
		return ResourceLimit
	case 0x18:
		return SecureDataInvalid
	case 0x19:
		return InvalidPageSize
	case 0x1a:
		return InvalidPageState
	case 0x1b:
		return InvalidMdataEntry
	case 0x1c:
		return InvalidPageOwner
	case 0x1d:
		return AeadOverflow
	case 0x1f:
		return RbModeExited
	case 0x20:
		return RmpInitRequired
	case 0x21:
		return BadSvn
	case 0x22:
		return BadVersion
	case 0x23:
		return ShutdownRequired
	case 0x24:
		return UpdateFailed
	case 0x25:
		return RestoreRequired
	case 0x26:
		return RmpInitFailed
	case 0x27:
		return InvalidKey
	default:
		return UnrecognizedCode
	}
}
