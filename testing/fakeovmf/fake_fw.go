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

// Package fakeovmf builds firmware images that carry the SEV tables OVMF embeds, for tests.
package fakeovmf

import (
	"testing"

	"github.com/google/sev-launch/ovmf/abi"
	"github.com/google/uuid"
)

const (
	// SevEsAddrVal is the addr value in the SEV-ES reset block for testing.
	SevEsAddrVal = 0xff0000ff

	// SevSnpValidatedStartAddr is a test-only pre-validated section address.
	SevSnpValidatedStartAddr = 0xff001000
	// SevSnpValidatedLength is a test-only pre-validated section length.
	SevSnpValidatedLength = 0x00001000
	// SevSnpCpuidAddr is a test-only CPUID page address.
	SevSnpCpuidAddr = 0xff003000
	// SevSnpSecretAddr is a test-only secrets page address.
	SevSnpSecretAddr = 0xff004000
)

// DefaultSnpSections returns one section of each kind an SNP firmware must declare.
func DefaultSnpSections() []abi.SevMetadataSection {
	return []abi.SevMetadataSection{
		{Address: SevSnpValidatedStartAddr, Length: SevSnpValidatedLength, Kind: abi.SevUnmeasuredSection},
		{Address: SevSnpCpuidAddr, Length: abi.PageSize, Kind: abi.SevCpuidSection},
		{Address: SevSnpSecretAddr, Length: abi.PageSize, Kind: abi.SevSecretSection},
	}
}

// Image returns a size-byte firmware image whose GUIDed table holds an SEV-ES reset block at
// resetAddr and, when sections is non-nil, an SNP metadata table placed at the start of the image.
func Image(t testing.TB, size int, resetAddr uint32, sections []abi.SevMetadataSection) []byte {
	t.Helper()
	if size < 0x1000 {
		t.Fatalf("example size must be >= 0x1000")
	}
	firmware := make([]byte, size)
	copy(firmware[0x800:], []byte("LGTMLGTMLGTMLGTM"))

	footerAt := size - abi.FwGUIDTableEndOffset - abi.SizeofFwGUIDEntry
	tableSize := abi.SizeofFwGUIDEntry
	put := func(at int, p interface{ Put([]byte) error }) {
		t.Helper()
		if err := p.Put(firmware[at:]); err != nil {
			t.Fatal(err)
		}
	}

	resetAt := footerAt - abi.SizeofSevEsResetBlock
	put(resetAt, &abi.SevEsResetBlock{
		Addr: resetAddr,
		Entry: abi.FwGUIDEntry{
			Size: abi.SizeofSevEsResetBlock,
			GUID: uuid.MustParse(abi.SevEsResetBlockGUID),
		},
	})
	tableSize += abi.SizeofSevEsResetBlock

	if sections != nil {
		header := &abi.SevMetadata{
			Signature: abi.SevSnpMetadataSignature,
			Length:    uint32(len(sections)*abi.SizeofSevMetadataSection + abi.SizeofSevMetadata),
			Version:   1,
			Sections:  uint32(len(sections)),
		}
		put(0, header)
		for i := range sections {
			put(abi.SizeofSevMetadata+i*abi.SizeofSevMetadataSection, &sections[i])
		}
		put(resetAt-abi.SizeofMetadataOffset, &abi.MetadataOffset{
			Offset: uint32(size),
			Entry: abi.FwGUIDEntry{
				Size: abi.SizeofMetadataOffset,
				GUID: uuid.MustParse(abi.SevMetadataOffsetGUID),
			},
		})
		tableSize += abi.SizeofMetadataOffset
	}

	put(footerAt, &abi.FwGUIDEntry{
		Size: uint16(tableSize),
		GUID: uuid.MustParse(abi.FwGUIDTableFooterGUID),
	})
	return firmware
}
