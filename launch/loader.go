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

package launch

import (
	"bytes"
	"io"

	"github.com/google/logger"
	"github.com/google/sev-launch/ovmf"
	"github.com/google/sev-launch/storage/ops"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

const (
	// FirmwareAddr is the guest physical address the firmware image is loaded at.
	FirmwareAddr = 0x100000
	// KernelAddr is the guest physical address the kernel image is loaded at.
	KernelAddr = 0x1000000
)

// LoadKernel copies all of src into guest memory at KernelAddr and returns its length. The kernel
// is not encrypted.
func (c *Context) LoadKernel(mem GuestMemory, src io.ReadSeeker) (uint64, error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, "could not size kernel image")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "could not rewind kernel image")
	}
	if err := mem.ReadExactFrom(KernelAddr, src, uint64(size)); err != nil {
		return 0, errors.Wrapf(err, "could not load 0x%x byte kernel at 0x%x", size, KernelAddr)
	}
	logger.V(1).Infof("Loaded 0x%x byte kernel at 0x%x", size, KernelAddr)
	return uint64(size), nil
}

// LoadFirmware copies the firmware image at path into guest memory at FirmwareAddr and returns its
// length. With encryption enabled it also encrypts exactly the image's span.
func (c *Context) LoadFirmware(ctx context.Context, mem GuestMemory, path string) (uint64, error) {
	firmware, err := ops.ReadFile(ctx, c.storage, "", path)
	if err != nil {
		return 0, errors.Wrap(err, "could not read firmware")
	}
	size := uint64(len(firmware))
	if err := mem.ReadExactFrom(FirmwareAddr, bytes.NewReader(firmware), size); err != nil {
		return 0, errors.Wrapf(err, "could not load 0x%x byte firmware at 0x%x", size, FirmwareAddr)
	}
	if !c.encryption {
		return size, nil
	}
	if c.es {
		c.inspectFirmware(firmware)
	}
	c.logElapsed("Pre-encrypting firmware")
	if err := c.LaunchUpdateData(mem, FirmwareAddr, size); err != nil {
		return 0, err
	}
	c.logElapsed("Done pre-encrypting firmware")
	return size, nil
}

// inspectFirmware logs the SEV launch parameters the firmware embeds. Firmware without them can
// still launch, so problems are only warnings.
func (c *Context) inspectFirmware(firmware []byte) {
	data, err := ovmf.Inspect(firmware, c.es, c.snp)
	if err != nil {
		logger.Warningf("Firmware has no usable SEV-ES launch data: %v", err)
		return
	}
	rip, csBase, err := data.ResetVector()
	if err != nil {
		logger.Warningf("Firmware has no SEV-ES reset vector: %v", err)
		return
	}
	logger.V(1).Infof("Firmware SEV-ES AP reset vector: RIP 0x%x, CS base 0x%x", rip, csBase)
	for _, s := range data.Sections {
		logger.V(1).Infof("Firmware SNP section %s: [0x%x, +0x%x)", ovmf.SectionKindString(s.Kind),
			s.Address, s.Length)
	}
}
