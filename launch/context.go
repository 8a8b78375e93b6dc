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

// Package launch drives an SEV, SEV-ES, or SEV-SNP guest through the platform launch protocol,
// from context initialization to a measured, running guest.
package launch

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/logger"
	"github.com/google/sev-launch/cpuid"
	"github.com/google/sev-launch/kvm"
	"github.com/google/sev-launch/sev"
	"github.com/google/sev-launch/storage/local"
	"github.com/google/sev-launch/storage/storagei"
)

// Device is an open platform device handle. The Context owns it and closes it on Close.
type Device interface {
	Fd() uintptr
	Close() error
}

// GuestMemory is the view of guest physical memory the launch sequence needs.
type GuestMemory interface {
	// ReadExactFrom copies exactly n bytes from src into guest memory at addr.
	ReadExactFrom(addr uint64, src io.Reader, n uint64) error
	// ReadSlice copies guest memory at addr into buf.
	ReadSlice(buf []byte, addr uint64) error
	// HostAddress returns the host address backing [addr, addr+length) as one contiguous span.
	HostAddress(addr, length uint64) (uintptr, error)
}

// Options configures a new Context.
type Options struct {
	// Device is the open platform device. It is required when Encryption is true.
	Device Device
	// Policy is the guest owner's policy. It never changes after construction.
	Policy sev.Policy
	// SNP selects SEV-SNP initialization.
	SNP bool
	// Encryption enables the launch protocol. When false, every launch operation succeeds without
	// doing anything, which allows booting the same firmware unencrypted.
	Encryption bool
	// CPUID provides the memory encryption leaf used to find the C-bit. It is required when
	// Encryption is true.
	CPUID cpuid.Source
	// Storage resolves firmware paths. Defaults to the local filesystem.
	Storage storagei.Client
	// Start is the reference time for elapsed-time logs. Defaults to construction time.
	Start Timestamp
}

// Context is the launch state of one confidential guest. It is not safe for concurrent use.
type Context struct {
	device     Device
	dispatcher *sev.Dispatcher
	storage    storagei.Client

	policy     sev.Policy
	snp        bool
	encryption bool
	es         bool
	cbit       uint32
	created    Timestamp

	state       State
	handle      uint32
	measurement sev.Measurement
	digest      *sev.LaunchDigest
}

// New returns a Context in state UnInit that routes commands through vm. It does not issue any
// platform command.
func New(vm sev.Router, opts Options) (*Context, error) {
	c := &Context{
		device:     opts.Device,
		storage:    opts.Storage,
		policy:     opts.Policy,
		snp:        opts.SNP,
		encryption: opts.Encryption,
		es:         opts.Policy.ES(),
		created:    opts.Start,
		state:      UnInit,
		digest:     sev.NewLaunchDigest(),
	}
	if c.created.Wall.IsZero() {
		c.created = Now()
	}
	if c.storage == nil {
		c.storage = &local.StorageClient{}
	}
	logger.Infof("Initializing new SEV guest context: policy %v", c.policy)
	if !c.encryption {
		return c, nil
	}
	if vm == nil || opts.Device == nil {
		return nil, errors.New("encryption requires a VM and an open SEV device")
	}
	if opts.CPUID == nil {
		return nil, errors.New("encryption requires a CPUID source")
	}
	cbit, err := cpuid.CBitPosition(opts.CPUID)
	if err != nil {
		return nil, err
	}
	c.cbit = cbit
	c.dispatcher = &sev.Dispatcher{Router: vm, SevFd: opts.Device.Fd()}
	return c, nil
}

// Open opens the platform device at path and returns a Context that owns it. The device is only
// opened when opts.Encryption is true.
func Open(vm sev.Router, path string, opts Options) (*Context, error) {
	if opts.Encryption {
		d, err := kvm.OpenDevice(path)
		if err != nil {
			return nil, err
		}
		opts.Device = d
	}
	c, err := New(vm, opts)
	if err != nil && opts.Device != nil {
		opts.Device.Close()
	}
	return c, err
}

// Close releases the platform device. The VM is not closed, since the caller shares it.
func (c *Context) Close() error {
	if c.device == nil {
		return nil
	}
	err := c.device.Close()
	c.device = nil
	return err
}

// State returns the current launch state.
func (c *Context) State() State { return c.state }

// Handle returns the platform-assigned guest handle, or 0 before LaunchStart succeeds.
func (c *Context) Handle() uint32 { return c.handle }

// Measurement returns the launch measurement. It is all zero until LaunchMeasure succeeds.
func (c *Context) Measurement() sev.Measurement { return c.measurement }

// LaunchDigest returns the SHA-256 over all plaintext encrypted so far.
func (c *Context) LaunchDigest() [32]byte { return c.digest.Sum() }

// Policy returns the guest policy.
func (c *Context) Policy() sev.Policy { return c.policy }

// ES returns whether the policy requires SEV-ES.
func (c *Context) ES() bool { return c.es }

// SNP returns whether the context uses SEV-SNP.
func (c *Context) SNP() bool { return c.snp }

// EncryptionEnabled returns whether launch operations talk to the platform at all.
func (c *Context) EncryptionEnabled() bool { return c.encryption }

// CBitPosition returns the encryption bit position in guest physical addresses.
func (c *Context) CBitPosition() uint32 { return c.cbit }

// advance checks that op is legal, submits cmd, and moves to the next state only if the platform
// accepted cmd.
func (c *Context) advance(op Op, cmd sev.Command) error {
	next, err := Next(op, c.state)
	if err != nil {
		return err
	}
	if err := c.dispatcher.Submit(cmd); err != nil {
		return fmt.Errorf("%v: %w", op, err)
	}
	c.state = next
	return nil
}

// PlatformInit initializes the guest's encryption context with SnpInit or SevInit, depending on
// the mode.
func (c *Context) PlatformInit() error {
	if c.snp {
		return c.SnpInit()
	}
	return c.SevInit()
}

// SevInit sends KVM_SEV_ES_INIT if the policy requires SEV-ES, and KVM_SEV_INIT otherwise.
func (c *Context) SevInit() error {
	if !c.encryption {
		return nil
	}
	op, cmd := OpSevInit, sev.Command(&sev.InitCmd{})
	if c.es {
		op, cmd = OpEsInit, &sev.EsInitCmd{}
	}
	logger.Infof("Sending %v", cmd.ID())
	if err := c.advance(op, cmd); err != nil {
		return err
	}
	logger.Infof("Done sending %v", cmd.ID())
	return nil
}

// SnpInit sends KVM_SEV_SNP_INIT. The SNP launch start that follows it is not implemented, so the
// context stays in Init.
func (c *Context) SnpInit() error {
	if !c.encryption {
		return nil
	}
	logger.Infof("Sending %v", sev.CmdSnpInit)
	if err := c.advance(OpSnpInit, &sev.SnpInitCmd{}); err != nil {
		return err
	}
	logger.Infof("Done sending %v", sev.CmdSnpInit)
	return c.snpLaunchStart()
}

func (c *Context) snpLaunchStart() error {
	logger.V(1).Info("SNP launch start is not implemented; leaving the guest context in Init")
	return nil
}

// LaunchStart creates the launch session. session and dhCert are the guest owner's session blob
// and Diffie-Hellman certificate; either may be nil. On success Handle returns the guest handle.
func (c *Context) LaunchStart(session, dhCert io.Reader) error {
	if !c.encryption {
		return nil
	}
	if c.snp {
		return fmt.Errorf("SNP %v: %w", OpLaunchStart, ErrNotImplemented)
	}
	logger.Infof("Sending %v", sev.CmdLaunchStart)
	if _, err := Next(OpLaunchStart, c.state); err != nil {
		return err
	}
	cmd := &sev.LaunchStartCmd{Policy: c.policy}
	var err error
	if cmd.Session, err = readBlob(session, "session"); err != nil {
		return err
	}
	if cmd.DHCert, err = readBlob(dhCert, "DH certificate"); err != nil {
		return err
	}
	if err := c.advance(OpLaunchStart, cmd); err != nil {
		return err
	}
	c.handle = cmd.Handle
	logger.Infof("Done sending %v: guest handle %d", sev.CmdLaunchStart, c.handle)
	return nil
}

func readBlob(r io.Reader, what string) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", what, err)
	}
	return b, nil
}

// LaunchUpdateData encrypts guest memory [addr, addr+length) in place. The platform only accepts
// 16-byte aligned spans, so the submitted span is widened to block boundaries. The bytes in the
// widened edges are read back from guest memory and encrypted in place along with the request, so
// neighboring content survives unchanged.
func (c *Context) LaunchUpdateData(mem GuestMemory, addr, length uint64) error {
	if !c.encryption {
		return nil
	}
	if _, err := Next(OpLaunchUpdateData, c.state); err != nil {
		return err
	}
	region, err := sev.AlignRegion(addr, length)
	if err != nil {
		return fmt.Errorf("%v [0x%x, +0x%x): %w", OpLaunchUpdateData, addr, length, err)
	}
	if region.Lead() != 0 || region.Trail() != 0 {
		logger.V(1).Infof("Widened [0x%x, +0x%x) to [0x%x, +0x%x): %d leading and %d trailing bytes preserved",
			addr, length, region.AlignedAddr, region.AlignedLen, region.Lead(), region.Trail())
	}
	plaintext := make([]byte, region.AlignedLen)
	if err := mem.ReadSlice(plaintext, region.AlignedAddr); err != nil {
		return fmt.Errorf("could not read guest memory to encrypt: %w", err)
	}
	host, err := mem.HostAddress(region.AlignedAddr, uint64(region.AlignedLen))
	if err != nil {
		return fmt.Errorf("could not resolve guest memory to encrypt: %w", err)
	}
	if host%sev.BlockSize != 0 {
		return fmt.Errorf("%v [0x%x, +0x%x) at host 0x%x: %w", OpLaunchUpdateData, region.AlignedAddr,
			region.AlignedLen, host, sev.ErrUnalignedHostAddress)
	}
	c.logElapsed("Pre-encryption start")
	if err := c.advance(OpLaunchUpdateData, &sev.LaunchUpdateDataCmd{HostAddr: host, Len: region.AlignedLen}); err != nil {
		return err
	}
	c.logElapsed("Pre-encryption done")
	if err := c.digest.Update(region.AlignedAddr, plaintext); err != nil {
		logger.Warningf("Launch digest is incomplete: %v", err)
	}
	return nil
}

// LaunchUpdateVmsa encrypts the vCPU save areas. It does nothing unless the policy requires SEV-ES.
func (c *Context) LaunchUpdateVmsa() error {
	if !c.encryption || !c.es {
		return nil
	}
	logger.Info("Encrypting VM save area...")
	return c.advance(OpLaunchUpdateVmsa, &sev.LaunchUpdateVmsaCmd{})
}

// LaunchMeasure retrieves the launch measurement. A failure leaves Measurement all zero.
func (c *Context) LaunchMeasure() error {
	if !c.encryption {
		return nil
	}
	logger.Infof("Sending %v", sev.CmdLaunchMeasure)
	cmd := &sev.LaunchMeasureCmd{}
	if err := c.advance(OpLaunchMeasure, cmd); err != nil {
		return err
	}
	c.measurement = cmd.Measurement
	logger.Infof("Done sending %v: measurement %v", sev.CmdLaunchMeasure, c.measurement)
	logger.V(1).Infof("Launch digest over %d regions: %x", c.digest.Updates(), c.LaunchDigest())
	return nil
}

// LaunchFinish completes the launch. The guest may run afterwards.
func (c *Context) LaunchFinish() error {
	if !c.encryption {
		return nil
	}
	logger.Infof("Sending %v", sev.CmdLaunchFinish)
	if err := c.advance(OpLaunchFinish, &sev.LaunchFinishCmd{}); err != nil {
		return err
	}
	logger.Infof("Done sending %v", sev.CmdLaunchFinish)
	return nil
}

// SendStart would begin migrating the guest out.
func (c *Context) SendStart() error {
	if !c.encryption {
		return nil
	}
	_, err := Next(OpSendStart, c.state)
	return err
}

// ReceiveStart would begin migrating a guest in.
func (c *Context) ReceiveStart() error {
	if !c.encryption {
		return nil
	}
	_, err := Next(OpReceiveStart, c.state)
	return err
}
