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

// Package abi defines the binary layout of the SEV-specific tables that OVMF embeds near the end
// of its ROM image.
package abi

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	// SizeofFwGUIDEntry is the ABI size of the FwGUIDEntry type.
	SizeofFwGUIDEntry = 18

	// FwGUIDTableFooterGUID is the GUIDed Table Footer GUID defined at upstream edk2
	// https://github.com/tianocore/edk2/blob/01726b6d23d4c8a870dbd5b96c0b9e3caf38ef3c/OvmfPkg/ResetVector/Ia16/ResetVectorVtf0.asm.
	FwGUIDTableFooterGUID = "96b582de-1fb2-45f7-baea-a366c55a082d"

	// FwGUIDTableEndOffset is the offset from the end of the firmware ROM to the end of the GUIDed
	// table structure.
	FwGUIDTableEndOffset = 0x20

	// PageSize is the granularity of OVMF SEV metadata sections.
	PageSize = 4096

	// SevEsResetBlockGUID identifies the block holding the AP reset vector that SEV-ES guests need,
	// since the VMM cannot emulate INIT-SIPI-SIPI on encrypted CPU state.
	SevEsResetBlockGUID = "00f771de-1a7e-4fcb-890e-68c77e2fb44e"

	// SevMetadataOffsetGUID identifies the block holding the offset of the SEV metadata. The
	// firmware spells it with one capital letter, but uuid.UUID.String() is always lowercase.
	SevMetadataOffsetGUID = "dc886566-984a-4798-a75e-5585a7bf67cc"

	// SevSnpMetadataSignature is "ASEV" read as a little-endian uint32.
	SevSnpMetadataSignature = 0x56455341

	// SevUnmeasuredSection is the metadata section kind for pre-validated memory.
	SevUnmeasuredSection = uint32(0x1)
	// SevSecretSection is the metadata section kind for the SNP secrets page.
	SevSecretSection = uint32(0x2)
	// SevCpuidSection is the metadata section kind for the SNP CPUID page.
	SevCpuidSection = uint32(0x3)
	// SevSvsmCaaSection is the metadata section kind for the SVSM calling area.
	SevSvsmCaaSection = uint32(0x4)

	// SizeofSevEsResetBlock is the ABI size of a packed SevEsResetBlock including its GUID entry.
	SizeofSevEsResetBlock = 4 + SizeofFwGUIDEntry
	// SizeofMetadataOffset is the ABI size of a packed MetadataOffset.
	SizeofMetadataOffset = 4 + SizeofFwGUIDEntry
	// SizeofSevMetadata is the ABI size of a packed SevMetadata header.
	SizeofSevMetadata = 16
	// SizeofSevMetadataSection is the ABI size of a packed SevMetadataSection.
	SizeofSevMetadataSection = 12
)

// FwGUIDEntry is the trailer of every block in the OVMF GUIDed table: the size of the block
// including the trailer, then the block's GUID.
type FwGUIDEntry struct {
	Size uint16
	GUID uuid.UUID
}

// FromEFIGUID parses an EFI_GUID, whose first three fields are little endian, into a uuid.UUID.
func FromEFIGUID(efiguid []byte) (uuid.UUID, error) {
	var result uuid.UUID
	if len(efiguid) != 16 {
		return result, fmt.Errorf("incorrect data size for EFI GUID: %d, want 16", len(efiguid))
	}
	binary.BigEndian.PutUint32(result[0:4], binary.LittleEndian.Uint32(efiguid[0:4]))
	binary.BigEndian.PutUint16(result[4:6], binary.LittleEndian.Uint16(efiguid[4:6]))
	binary.BigEndian.PutUint16(result[6:8], binary.LittleEndian.Uint16(efiguid[6:8]))
	copy(result[8:16], efiguid[8:16])
	return result, nil
}

// PutUUID writes guid to data in EFI_GUID format.
func PutUUID(data []byte, guid uuid.UUID) error {
	if len(data) < 16 {
		return fmt.Errorf("data too small for GUID: %d < 16", len(data))
	}
	binary.LittleEndian.PutUint32(data[0:4], binary.BigEndian.Uint32(guid[0:4]))
	binary.LittleEndian.PutUint16(data[4:6], binary.BigEndian.Uint16(guid[4:6]))
	binary.LittleEndian.PutUint16(data[6:8], binary.BigEndian.Uint16(guid[6:8]))
	copy(data[8:16], guid[8:16])
	return nil
}

// Put writes f in its ABI format to the beginning of data.
func (f *FwGUIDEntry) Put(data []byte) error {
	if len(data) < SizeofFwGUIDEntry {
		return fmt.Errorf("data too small for FwGUIDEntry: %d < %d", len(data), SizeofFwGUIDEntry)
	}
	binary.LittleEndian.PutUint16(data[0:2], f.Size)
	return PutUUID(data[2:SizeofFwGUIDEntry], f.GUID)
}

// FwGUIDEntryFromBytes interprets the beginning of data as a packed FwGUIDEntry.
func FwGUIDEntryFromBytes(data []byte) (*FwGUIDEntry, error) {
	if len(data) < SizeofFwGUIDEntry {
		return nil, fmt.Errorf("data too small for FwGUIDEntry: %d < %d", len(data), SizeofFwGUIDEntry)
	}
	guid, err := FromEFIGUID(data[2:SizeofFwGUIDEntry])
	if err != nil {
		return nil, err
	}
	return &FwGUIDEntry{Size: binary.LittleEndian.Uint16(data[0:2]), GUID: guid}, nil
}

// SevEsResetBlock is the GUIDed block that tells the VMM where SEV-ES application processors
// start executing.
type SevEsResetBlock struct {
	// Addr holds the AP reset RIP in its low 16 bits and the CS base in its high 16 bits.
	Addr  uint32
	Entry FwGUIDEntry
}

// Put writes b in its ABI format to the beginning of data.
func (b *SevEsResetBlock) Put(data []byte) error {
	if len(data) < SizeofSevEsResetBlock {
		return fmt.Errorf("data too small for SEV-ES reset block: %d < %d", len(data), SizeofSevEsResetBlock)
	}
	binary.LittleEndian.PutUint32(data[0:4], b.Addr)
	return b.Entry.Put(data[4:SizeofSevEsResetBlock])
}

// SevEsResetBlockFromBytes interprets data as a packed SevEsResetBlock.
func SevEsResetBlockFromBytes(data []byte) (*SevEsResetBlock, error) {
	if len(data) != SizeofSevEsResetBlock {
		return nil, fmt.Errorf("unexpected SEV-ES reset block size %d, want: %d", len(data), SizeofSevEsResetBlock)
	}
	entry, err := FwGUIDEntryFromBytes(data[4:])
	if err != nil {
		return nil, err
	}
	return &SevEsResetBlock{Addr: binary.LittleEndian.Uint32(data[0:4]), Entry: *entry}, nil
}

// SevMetadataSection describes one range of guest memory the VMM must prepare for an SNP guest.
type SevMetadataSection struct {
	Address uint32
	Length  uint32
	Kind    uint32
}

// Put writes s in its ABI format to the beginning of data.
func (s *SevMetadataSection) Put(data []byte) error {
	if len(data) < SizeofSevMetadataSection {
		return fmt.Errorf("data too small for SEV metadata section: %d < %d", len(data), SizeofSevMetadataSection)
	}
	binary.LittleEndian.PutUint32(data[0:4], s.Address)
	binary.LittleEndian.PutUint32(data[4:8], s.Length)
	binary.LittleEndian.PutUint32(data[8:12], s.Kind)
	return nil
}

// SevMetadataSectionFromBytes interprets the beginning of data as a packed SevMetadataSection.
func SevMetadataSectionFromBytes(data []byte) *SevMetadataSection {
	return &SevMetadataSection{
		Address: binary.LittleEndian.Uint32(data[0:4]),
		Length:  binary.LittleEndian.Uint32(data[4:8]),
		Kind:    binary.LittleEndian.Uint32(data[8:12]),
	}
}

// SevMetadata is the header of the SEV metadata table. Sections follow it immediately.
type SevMetadata struct {
	Signature uint32
	Length    uint32
	Version   uint32
	Sections  uint32
}

// Put writes m in its ABI format to the beginning of data.
func (m *SevMetadata) Put(data []byte) error {
	if len(data) < SizeofSevMetadata {
		return fmt.Errorf("data too small for SEV metadata: %d < %d", len(data), SizeofSevMetadata)
	}
	binary.LittleEndian.PutUint32(data[0:4], m.Signature)
	binary.LittleEndian.PutUint32(data[4:8], m.Length)
	binary.LittleEndian.PutUint32(data[8:12], m.Version)
	binary.LittleEndian.PutUint32(data[12:16], m.Sections)
	return nil
}

// SevMetadataFromBytes interprets the beginning of data as a packed SevMetadata header.
func SevMetadataFromBytes(data []byte) *SevMetadata {
	return &SevMetadata{
		Signature: binary.LittleEndian.Uint32(data[0:4]),
		Length:    binary.LittleEndian.Uint32(data[4:8]),
		Version:   binary.LittleEndian.Uint32(data[8:12]),
		Sections:  binary.LittleEndian.Uint32(data[12:16]),
	}
}

// MetadataOffset is the GUIDed block holding the distance from the end of the ROM to the
// SevMetadata header.
type MetadataOffset struct {
	Offset uint32
	Entry  FwGUIDEntry
}

// Put writes o in its ABI format to the beginning of data.
func (o *MetadataOffset) Put(data []byte) error {
	if len(data) < SizeofMetadataOffset {
		return fmt.Errorf("data too small for SEV metadata offset: %d < %d", len(data), SizeofMetadataOffset)
	}
	binary.LittleEndian.PutUint32(data[0:4], o.Offset)
	return o.Entry.Put(data[4:SizeofMetadataOffset])
}

// MetadataOffsetFromBytes interprets data as a packed MetadataOffset.
func MetadataOffsetFromBytes(data []byte) (*MetadataOffset, error) {
	if len(data) != SizeofMetadataOffset {
		return nil, fmt.Errorf("unexpected SEV metadata offset size %d, want: %d", len(data), SizeofMetadataOffset)
	}
	entry, err := FwGUIDEntryFromBytes(data[4:])
	if err != nil {
		return nil, fmt.Errorf("could not populate GUIDEntry: %v", err)
	}
	return &MetadataOffset{Offset: binary.LittleEndian.Uint32(data[0:4]), Entry: *entry}, nil
}
