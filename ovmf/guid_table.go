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

// Package ovmf inspects OVMF firmware images for the SEV launch parameters they embed.
package ovmf

import (
	"fmt"

	"github.com/google/sev-launch/ovmf/abi"
	"github.com/google/uuid"
)

var footerGUID = uuid.MustParse(abi.FwGUIDTableFooterGUID)

// GUIDTable returns the firmware's GUIDed table without its footer block. The table ends
// abi.FwGUIDTableEndOffset bytes before the end of the image, and its footer records the total
// table size.
func GUIDTable(firmware []byte) ([]byte, error) {
	footerOffsetFromEnd := abi.FwGUIDTableEndOffset + abi.SizeofFwGUIDEntry
	if len(firmware) < footerOffsetFromEnd {
		return nil, fmt.Errorf("firmware is too small: found size 0x%x < 0x%x", len(firmware),
			footerOffsetFromEnd)
	}
	footer, err := abi.FwGUIDEntryFromBytes(firmware[len(firmware)-footerOffsetFromEnd:])
	if err != nil {
		return nil, err
	}
	if footer.GUID != footerGUID {
		return nil, fmt.Errorf("%w: got footer %v, want %v", ErrNoGUIDTable, footer.GUID,
			abi.FwGUIDTableFooterGUID)
	}
	size := int(footer.Size)
	if size < abi.SizeofFwGUIDEntry || len(firmware) < size+abi.FwGUIDTableEndOffset {
		return nil, fmt.Errorf("invalid GUIDed table size: found size %d fw_size: %d", footer.Size,
			len(firmware))
	}
	start := len(firmware) - abi.FwGUIDTableEndOffset - size
	return firmware[start : start+size-abi.SizeofFwGUIDEntry], nil
}

// GUIDBlocks returns each block of the firmware's GUIDed table keyed by its GUID. Each block
// includes its trailing FwGUIDEntry.
func GUIDBlocks(firmware []byte) (map[uuid.UUID][]byte, error) {
	table, err := GUIDTable(firmware)
	if err != nil {
		return nil, err
	}
	blocks := make(map[uuid.UUID][]byte)
	// Blocks are walked from the bottom of the table upward.
	for remaining := len(table); remaining > 0; {
		if remaining < abi.SizeofFwGUIDEntry {
			return nil, fmt.Errorf("GUIDed table size unexpected, min exp size: %d remaining size: %d table length: %d",
				abi.SizeofFwGUIDEntry, remaining, len(table))
		}
		entry, err := abi.FwGUIDEntryFromBytes(table[remaining-abi.SizeofFwGUIDEntry : remaining])
		if err != nil {
			return nil, err
		}
		size := int(entry.Size)
		if size < abi.SizeofFwGUIDEntry || remaining < size {
			return nil, fmt.Errorf("GUIDed table entries are corrupted, remaining size: %d, size found: %d, table length: %d",
				remaining, size, len(table))
		}
		if _, ok := blocks[entry.GUID]; ok {
			return nil, fmt.Errorf("duplicate GUIDs in the table, repeated GUID: %v", entry.GUID)
		}
		blocks[entry.GUID] = table[remaining-size : remaining]
		remaining -= size
	}
	return blocks, nil
}

func guidBlock(blocks map[uuid.UUID][]byte, guid string, size int) ([]byte, error) {
	block, ok := blocks[uuid.MustParse(guid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBlock, guid)
	}
	if len(block) != size {
		return nil, fmt.Errorf("mismatch with GUID block size, GUID: %s expected %d found: %d", guid,
			size, len(block))
	}
	return block, nil
}
