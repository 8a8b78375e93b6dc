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

// Package boot drives an SEV guest launch end to end: it prepares a VM and guest memory on a Host,
// loads firmware and an optional kernel, runs the launch sequence, and records the measurement.
package boot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/logger"
	"github.com/google/sev-launch/cmd/output"
	"github.com/google/sev-launch/cpuid"
	"github.com/google/sev-launch/guestmem"
	"github.com/google/sev-launch/launch"
	"github.com/google/sev-launch/sev"
	"github.com/google/sev-launch/storage/ops"
	"github.com/google/sev-launch/storage/storagei"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/net/context"
)

const (
	// MeasurementFile is the name of the hex-encoded launch measurement written to OutDir.
	MeasurementFile = "launch_measurement"
	// DigestFile is the name of the hex-encoded launch digest written to OutDir.
	DigestFile = "launch_digest"
	// MinMemorySize is the smallest guest that fits the firmware and a kernel at their load
	// addresses.
	MinMemorySize = 2 * launch.KernelAddr
)

var (
	// ErrNoContext is returned when FromContext cannot find boot Options in the context.
	ErrNoContext = errors.New("no boot context found")
	// ErrNoFirmware is returned when Options names no firmware image.
	ErrNoFirmware = errors.New("a firmware image is required")
)

// Guest is a VM with its guest memory mapped, ready to be launched.
type Guest struct {
	VM     sev.Router
	CPUID  cpuid.Source
	Memory *guestmem.Memory
	// Closers release the guest's resources in order.
	Closers []func() error
}

// Close releases every resource of the guest and returns all errors encountered.
func (g *Guest) Close() error {
	var err error
	for _, c := range g.Closers {
		err = multierr.Append(err, c())
	}
	g.Closers = nil
	return err
}

// Host creates guests.
type Host interface {
	// CreateGuest returns a new VM with memSize bytes of guest memory mapped at guest physical
	// address 0.
	CreateGuest(memSize uint64) (*Guest, error)
}

// Options configures a launch.
type Options struct {
	// Firmware is the firmware image path.
	Firmware string
	// Kernel is an optional kernel image path.
	Kernel string
	// Session and DHCert are optional paths to the guest owner's launch blobs.
	Session string
	DHCert  string
	// Policy is the guest owner's policy.
	Policy sev.Policy
	SNP    bool
	// Encryption enables the launch protocol. When false the guest is loaded unencrypted.
	Encryption bool
	// MemorySize is the guest memory size in bytes.
	MemorySize uint64
	// DevicePath is the path of the SEV platform device.
	DevicePath string
	// OutDir is the bucket the measurement files are written to. Empty means no files are written.
	OutDir string
	// Storage resolves all input paths and OutDir.
	Storage storagei.Client
	// Host creates the guest VM.
	Host Host
	// Open opens the launch context. Defaults to launch.Open.
	Open func(vm sev.Router, devicePath string, opts launch.Options) (*launch.Context, error)
}

type bootKeyType struct{}

var bootKey bootKeyType

// NewContext returns ctx extended with the given boot options.
func NewContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, bootKey, opts)
}

// FromContext returns the boot options in ctx.
func FromContext(ctx context.Context) (*Options, error) {
	opts, ok := ctx.Value(bootKey).(*Options)
	if !ok {
		return nil, ErrNoContext
	}
	return opts, nil
}

// Result summarizes a completed launch.
type Result struct {
	// ID identifies the launch in logs and output.
	ID           uuid.UUID
	Started      time.Time
	Handle       uint32
	State        launch.State
	Measurement  sev.Measurement
	LaunchDigest [32]byte
	FirmwareSize uint64
	KernelSize   uint64
}

// Run performs the launch configured in ctx's boot options and tears the guest down afterwards.
func Run(ctx context.Context) (result *Result, err error) {
	opts, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Firmware == "" {
		return nil, ErrNoFirmware
	}
	if opts.Host == nil || opts.Storage == nil {
		return nil, errors.New("boot options require a host and storage")
	}
	guest, err := opts.Host.CreateGuest(opts.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("could not create guest: %w", err)
	}
	defer func() { err = multierr.Append(err, guest.Close()) }()

	open := opts.Open
	if open == nil {
		open = launch.Open
	}
	lc, err := open(guest.VM, opts.DevicePath, launch.Options{
		Policy:     opts.Policy,
		SNP:        opts.SNP,
		Encryption: opts.Encryption,
		CPUID:      guest.CPUID,
		Storage:    opts.Storage,
	})
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, lc.Close()) }()

	result = &Result{ID: uuid.New(), Started: time.Now()}
	logger.Infof("Launch %v: policy %v, encryption %v", result.ID, opts.Policy, opts.Encryption)
	if err := runSequence(ctx, opts, lc, guest.Memory, result); err != nil {
		return nil, fmt.Errorf("launch %v failed in state %v: %w", result.ID, lc.State(), err)
	}
	result.Handle = lc.Handle()
	result.State = lc.State()
	result.Measurement = lc.Measurement()
	result.LaunchDigest = lc.LaunchDigest()
	if err := writeResult(ctx, opts, lc, result); err != nil {
		return nil, err
	}
	return result, nil
}

func runSequence(ctx context.Context, opts *Options, lc *launch.Context, mem *guestmem.Memory, result *Result) error {
	if err := lc.PlatformInit(); err != nil {
		return err
	}
	if lc.SNP() {
		// The SNP launch flow ends at initialization.
		return nil
	}
	session, err := readOptional(ctx, opts.Storage, opts.Session)
	if err != nil {
		return err
	}
	dhCert, err := readOptional(ctx, opts.Storage, opts.DHCert)
	if err != nil {
		return err
	}
	if err := lc.LaunchStart(bytes.NewReader(session), bytes.NewReader(dhCert)); err != nil {
		return err
	}
	if result.FirmwareSize, err = lc.LoadFirmware(ctx, mem, opts.Firmware); err != nil {
		return err
	}
	if opts.Kernel != "" {
		k, err := ops.OpenSeekable(ctx, opts.Storage, "", opts.Kernel)
		if err != nil {
			return err
		}
		defer k.Close()
		if result.KernelSize, err = lc.LoadKernel(mem, k); err != nil {
			return err
		}
	}
	if err := lc.LaunchUpdateVmsa(); err != nil {
		return err
	}
	if err := lc.LaunchMeasure(); err != nil {
		return err
	}
	return lc.LaunchFinish()
}

func readOptional(ctx context.Context, s storagei.Client, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return ops.ReadFile(ctx, s, "", path)
}

func writeResult(ctx context.Context, opts *Options, lc *launch.Context, result *Result) error {
	if !lc.EncryptionEnabled() {
		output.Infof(ctx, "Launch %v: encryption disabled, guest loaded unmeasured", result.ID)
		return nil
	}
	output.Infof(ctx, "Launch %v: handle %d, state %v", result.ID, result.Handle, result.State)
	if result.Measurement.IsZero() {
		return nil
	}
	output.Infof(ctx, "Measurement: %v", result.Measurement)
	output.Debugf(ctx, "Launch digest: %x", result.LaunchDigest)
	if opts.OutDir == "" {
		return nil
	}
	record, err := result.MarshalRecord(opts)
	if err != nil {
		return err
	}
	files := []struct {
		name     string
		contents []byte
	}{
		{MeasurementFile, []byte(result.Measurement.String() + "\n")},
		{DigestFile, []byte(fmt.Sprintf("%x\n", result.LaunchDigest))},
		{RecordFile, record},
	}
	if err := opts.Storage.EnsureBucketExists(ctx, opts.OutDir); err != nil {
		return err
	}
	for _, f := range files {
		exists, err := opts.Storage.Exists(ctx, opts.OutDir, f.name)
		if err != nil {
			return err
		}
		if exists && !output.AllowOverwrite(ctx) {
			return fmt.Errorf("%s/%s: %w", opts.OutDir, f.name, os.ErrExist)
		}
		if err := ops.WriteFile(ctx, opts.Storage, opts.OutDir, f.name, f.contents); err != nil {
			return err
		}
		output.Debugf(ctx, "Wrote %s/%s", opts.OutDir, f.name)
	}
	return nil
}
