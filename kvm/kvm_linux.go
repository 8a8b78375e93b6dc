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

//go:build linux

package kvm

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	sgabi "github.com/google/go-sev-guest/abi"
	"github.com/google/logger"
	"github.com/google/sev-launch/cpuid"
	"github.com/google/sev-launch/sev"
	"golang.org/x/sys/unix"
)

const (
	systemPath = "/dev/kvm"

	kvmAPIVersion = 12

	kvmGetAPIVersion       = 0xae00
	kvmCreateVM            = 0xae01
	kvmGetSupportedCPUID   = 0xc008ae05
	kvmSetUserMemoryRegion = 0x4020ae46
	kvmMemoryEncryptOp     = 0xc008aeba

	maxCPUIDEntries = 256
)

type kvmUserspaceMemoryRegion struct {
	Slot          uint32
	Flags         uint32
	GuestPhysAddr uint64
	MemorySize    uint64
	UserspaceAddr uint64
}

type kvmCPUIDEntry2 struct {
	Function uint32
	Index    uint32
	Flags    uint32
	Eax      uint32
	Ebx      uint32
	Ecx      uint32
	Edx      uint32
	Padding  [3]uint32
}

type kvmCPUID2 struct {
	Nr      uint32
	Padding uint32
	Entries [maxCPUIDEntries]kvmCPUIDEntry2
}

func ioctl(fd, req, arg uintptr) (uintptr, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return r, errno
	}
	return r, nil
}

// System is an open handle to the KVM system device.
type System struct {
	f     *os.File
	cpuid cpuid.Static
}

// OpenSystem opens /dev/kvm and checks its API version.
func OpenSystem() (*System, error) {
	f, err := os.OpenFile(systemPath, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", systemPath, err)
	}
	version, err := ioctl(f.Fd(), kvmGetAPIVersion, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("KVM_GET_API_VERSION: %w", err)
	}
	if version != kvmAPIVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported KVM API version %d, want %d", version, kvmAPIVersion)
	}
	return &System{f: f}, nil
}

// Close releases the system device.
func (s *System) Close() error { return s.f.Close() }

// Leaf implements cpuid.Source over the CPUID entries KVM supports for guests.
func (s *System) Leaf(function, index uint32) (cpuid.Entry, error) {
	if s.cpuid == nil {
		entries, err := s.supportedCPUID()
		if err != nil {
			return cpuid.Entry{}, err
		}
		s.cpuid = entries
	}
	return s.cpuid.Leaf(function, index)
}

func (s *System) supportedCPUID() (cpuid.Static, error) {
	buf := &kvmCPUID2{Nr: maxCPUIDEntries}
	if _, err := ioctl(s.f.Fd(), kvmGetSupportedCPUID, uintptr(unsafe.Pointer(buf))); err != nil {
		return nil, fmt.Errorf("KVM_GET_SUPPORTED_CPUID: %w", err)
	}
	result := make(cpuid.Static, 0, buf.Nr)
	for _, e := range buf.Entries[:buf.Nr] {
		result = append(result, cpuid.Entry{
			Function: e.Function,
			Index:    e.Index,
			EAX:      e.Eax,
			EBX:      e.Ebx,
			ECX:      e.Ecx,
			EDX:      e.Edx,
		})
	}
	logger.V(2).Infof("KVM supports %d CPUID entries", len(result))
	return result, nil
}

// CreateVM creates a new virtual machine.
func (s *System) CreateVM() (*VM, error) {
	fd, err := ioctl(s.f.Fd(), kvmCreateVM, 0)
	if err != nil {
		return nil, fmt.Errorf("KVM_CREATE_VM: %w", err)
	}
	return &VM{f: os.NewFile(fd, "kvm-vm")}, nil
}

// VM is an open virtual machine. Its memory encryption commands are routed through the VM file
// descriptor.
type VM struct {
	f *os.File
}

// Close releases the VM.
func (vm *VM) Close() error { return vm.f.Close() }

// SetUserMemoryRegion maps size bytes of host memory at hostAddr into the guest at gpa.
func (vm *VM) SetUserMemoryRegion(slot uint32, gpa, size uint64, hostAddr uintptr) error {
	region := &kvmUserspaceMemoryRegion{
		Slot:          slot,
		GuestPhysAddr: gpa,
		MemorySize:    size,
		UserspaceAddr: uint64(hostAddr),
	}
	if _, err := ioctl(vm.f.Fd(), kvmSetUserMemoryRegion, uintptr(unsafe.Pointer(region))); err != nil {
		return fmt.Errorf("KVM_SET_USER_MEMORY_REGION slot %d: %w", slot, err)
	}
	return nil
}

func bytesAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

// EncryptOp implements sev.Router. The command's payload is converted to its KVM ABI layout only
// for the duration of the ioctl, and results are copied back into cmd.
func (vm *VM) EncryptOp(sevFd uintptr, cmd sev.Command) (sgabi.SevFirmwareStatus, error) {
	env := &sev.KvmSevCmd{ID: uint32(cmd.ID()), SevFd: uint32(sevFd)}
	var data any
	switch c := cmd.(type) {
	case *sev.InitCmd, *sev.EsInitCmd, *sev.LaunchUpdateVmsaCmd, *sev.LaunchFinishCmd:
	case *sev.SnpInitCmd:
		p := &sev.KvmSnpInit{Flags: c.Flags}
		env.Data, data = uint64(uintptr(unsafe.Pointer(p))), p
	case *sev.LaunchStartCmd:
		p := &sev.KvmSevLaunchStart{
			Policy:       uint32(c.Policy),
			DhUaddr:      bytesAddr(c.DHCert),
			DhLen:        uint32(len(c.DHCert)),
			SessionUaddr: bytesAddr(c.Session),
			SessionLen:   uint32(len(c.Session)),
		}
		env.Data, data = uint64(uintptr(unsafe.Pointer(p))), p
		defer func() { c.Handle = p.Handle }()
	case *sev.LaunchUpdateDataCmd:
		p := &sev.KvmSevLaunchUpdateData{Uaddr: uint64(c.HostAddr), Len: c.Len}
		env.Data, data = uint64(uintptr(unsafe.Pointer(p))), p
	case *sev.LaunchMeasureCmd:
		p := &sev.KvmSevLaunchMeasure{Uaddr: bytesAddr(c.Measurement[:]), Len: sev.MeasurementSize}
		env.Data, data = uint64(uintptr(unsafe.Pointer(p))), p
	default:
		return sev.StatusSuccess, fmt.Errorf("no KVM encoding for %v", cmd.ID())
	}
	_, err := ioctl(vm.f.Fd(), kvmMemoryEncryptOp, uintptr(unsafe.Pointer(env)))
	runtime.KeepAlive(data)
	runtime.KeepAlive(cmd)
	if err != nil {
		return sgabi.SevFirmwareStatus(env.Error), err
	}
	return sev.StatusSuccess, nil
}
