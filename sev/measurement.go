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

// Package sev implements the host side of the AMD SEV launch command protocol: the platform error
// taxonomy, typed launch commands and their dispatch, guest policy, and launch measurement types.
package sev

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

const (
	// MeasurementSize is the byte length of a LAUNCH_MEASURE result.
	MeasurementSize = 48
	// measurementDigestSize is the size of the HMAC-SHA256 part of the measurement.
	measurementDigestSize = sha256.Size
)

// Measurement is the platform's LAUNCH_MEASURE result: HMAC-SHA256 over the launch context keyed
// with the guest owner's TIK, followed by the 16-byte MNONCE.
type Measurement [MeasurementSize]byte

// Digest returns the HMAC part of the measurement.
func (m *Measurement) Digest() []byte { return m[:measurementDigestSize] }

// Nonce returns the MNONCE part of the measurement.
func (m *Measurement) Nonce() []byte { return m[measurementDigestSize:] }

// IsZero returns whether the measurement has never been populated.
func (m Measurement) IsZero() bool { return m == Measurement{} }

func (m Measurement) String() string { return hex.EncodeToString(m[:]) }

// LaunchDigest reconstructs GCTX.LD, the SHA-256 the platform keeps over all plaintext passed to
// LAUNCH_UPDATE_DATA in submission order. VMSA contents under SEV-ES are not included.
type LaunchDigest struct {
	h       hash.Hash
	updates int
}

// NewLaunchDigest returns an empty launch digest.
func NewLaunchDigest() *LaunchDigest {
	return &LaunchDigest{h: sha256.New()}
}

// Update extends the digest with the contents of a LAUNCH_UPDATE_DATA region at gpa.
func (d *LaunchDigest) Update(gpa uint64, data []byte) error {
	if err := checkUpdateDataAlignment(gpa, len(data)); err != nil {
		return err
	}
	d.h.Write(data)
	d.updates++
	return nil
}

// Updates returns how many regions the digest covers.
func (d *LaunchDigest) Updates() int { return d.updates }

// Sum returns the current digest value.
func (d *LaunchDigest) Sum() [sha256.Size]byte {
	var out [sha256.Size]byte
	copy(out[:], d.h.Sum(nil))
	return out
}

// checkUpdateDataAlignment returns an error if the given span isn't BlockSize aligned.
func checkUpdateDataAlignment(gpa uint64, length int) error {
	if gpa%BlockSize != 0 {
		return fmt.Errorf("launch data must be aligned on 0x%x bytes. Got address 0x%x", BlockSize, gpa)
	}
	if length%BlockSize != 0 {
		return fmt.Errorf("launch data must be a multiple of 0x%x bytes. Got size 0x%x", BlockSize, length)
	}
	return nil
}
