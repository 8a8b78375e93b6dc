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

package ovmf

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/sev-launch/ovmf/abi"
	"github.com/google/uuid"
)

var (
	// ErrNoGUIDTable is returned when the firmware image has no GUIDed table footer.
	ErrNoGUIDTable = errors.New("firmware has no GUIDed table")
	// ErrNoBlock is returned when the GUIDed table lacks a required block.
	ErrNoBlock = errors.New("no matching GUID block")
)

// SevData is the SEV launch information embedded in a firmware image.
type SevData struct {
	// ResetBlock is set when the firmware supports SEV-ES application processor startup.
	ResetBlock *abi.SevEsResetBlock
	// Sections lists the SNP metadata sections. It is set only when inspecting for SNP.
	Sections []abi.SevMetadataSection
}

// Inspect extracts the SEV-ES reset block, and the SNP metadata sections when snp is true, from
// firmware. SNP requires ES.
func Inspect(firmware []byte, es, snp bool) (*SevData, error) {
	if snp && !es {
		return nil, errors.New("cannot use SEV-SNP without SEV-ES")
	}
	if !es {
		return &SevData{}, nil
	}
	blocks, err := GUIDBlocks(firmware)
	if err != nil {
		return nil, fmt.Errorf("could not get GUID table from firmware: %w", err)
	}
	block, err := guidBlock(blocks, abi.SevEsResetBlockGUID, abi.SizeofSevEsResetBlock)
	if err != nil {
		return nil, fmt.Errorf("could not extract SEV-ES reset block: %w", err)
	}
	result := &SevData{}
	if result.ResetBlock, err = abi.SevEsResetBlockFromBytes(block); err != nil {
		return nil, err
	}
	if !snp {
		return result, nil
	}
	if result.Sections, err = snpSections(blocks, firmware); err != nil {
		return nil, fmt.Errorf("could not extract SEV OVMF metadata: %w", err)
	}
	if err := validateSections(result.Sections); err != nil {
		return nil, err
	}
	return result, nil
}

// ResetVector returns the application processor RIP and CS base from the reset block.
func (d *SevData) ResetVector() (rip, csBase uint64, err error) {
	if d.ResetBlock == nil {
		return 0, 0, errors.New("no SEV-ES reset block available")
	}
	addr := uint64(d.ResetBlock.Addr)
	return addr & 0x0000ffff, addr & 0xffff0000, nil
}

// SectionKindString returns the OVMF name of an SNP metadata section kind.
func SectionKindString(kind uint32) string {
	switch kind {
	case abi.SevCpuidSection:
		return "OVMF_SECTION_TYPE_CPUID"
	case abi.SevSecretSection:
		return "OVMF_SECTION_TYPE_SNP_SECRETS"
	case abi.SevUnmeasuredSection:
		return "OVMF_SECTION_TYPE_SNP_SEC_MEM"
	case abi.SevSvsmCaaSection:
		return "OVMF_SECTION_TYPE_SVSM_CAA"
	default:
		return fmt.Sprintf("[unknown SNP metadata section type: 0x%x]", kind)
	}
}

func snpSections(blocks map[uuid.UUID][]byte, firmware []byte) ([]abi.SevMetadataSection, error) {
	block, err := guidBlock(blocks, abi.SevMetadataOffsetGUID, abi.SizeofMetadataOffset)
	if err != nil {
		return nil, err
	}
	offset, err := abi.MetadataOffsetFromBytes(block)
	if err != nil {
		return nil, err
	}
	if uint64(len(firmware)) < uint64(offset.Offset) || offset.Offset < abi.SizeofSevMetadata {
		return nil, fmt.Errorf("SEV metadata offset 0x%x is out of bounds for firmware size 0x%x",
			offset.Offset, len(firmware))
	}
	start := len(firmware) - int(offset.Offset)
	header := abi.SevMetadataFromBytes(firmware[start:])
	if header.Signature != abi.SevSnpMetadataSignature {
		return nil, fmt.Errorf("the signature of the SEV metadata is incorrect: 0x%x", header.Signature)
	}
	// Length and section count describe the same table, so they must agree.
	if uint64(header.Length) != uint64(header.Sections)*abi.SizeofSevMetadataSection+abi.SizeofSevMetadata {
		return nil, fmt.Errorf("mismatch between SEV metadata length: %d and section count: %d",
			header.Length, header.Sections)
	}
	if offset.Offset < header.Length {
		return nil, fmt.Errorf("SEV metadata offset is not large enough to contain the metadata: %d < %d",
			offset.Offset, header.Length)
	}
	sections := make([]abi.SevMetadataSection, header.Sections)
	for i := range sections {
		at := start + abi.SizeofSevMetadata + i*abi.SizeofSevMetadataSection
		sections[i] = *abi.SevMetadataSectionFromBytes(firmware[at:])
	}
	return sections, nil
}

// validateSections checks that the SNP metadata names exactly one CPUID page and one secrets page,
// at least one pre-validated range, and that no two sections overlap.
func validateSections(sections []abi.SevMetadataSection) error {
	seen := make(map[uint32]uint32)
	for _, section := range sections {
		if prev, ok := seen[section.Kind]; ok &&
			(section.Kind == abi.SevSecretSection || section.Kind == abi.SevCpuidSection) {
			return fmt.Errorf("expected only 1 section of type %s. Previous section at address 0x%x conflicts with extra section at address 0x%x",
				SectionKindString(section.Kind), prev, section.Address)
		}
		seen[section.Kind] = section.Address
		if section.Length == 0 || section.Length%abi.PageSize != 0 {
			return fmt.Errorf("section %s has length that's not a positive multiple of a 4K page size: 0x%x",
				SectionKindString(section.Kind), section.Length)
		}
	}
	for _, kind := range []uint32{abi.SevUnmeasuredSection, abi.SevSecretSection, abi.SevCpuidSection} {
		if _, ok := seen[kind]; !ok {
			return fmt.Errorf("no %s section found in the SEV OVMF metadata", SectionKindString(kind))
		}
	}
	sorted := append([]abi.SevMetadataSection(nil), sections...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })
	for i := 0; i+1 < len(sorted); i++ {
		end := uint64(sorted[i].Address) + uint64(sorted[i].Length)
		if end > uint64(sorted[i+1].Address) {
			return fmt.Errorf("SEV section %s: [0x%x-0x%x] overlaps with %s at 0x%x",
				SectionKindString(sorted[i].Kind), sorted[i].Address, end,
				SectionKindString(sorted[i+1].Kind), sorted[i+1].Address)
		}
	}
	return nil
}
