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

package boot

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecordFile is the name of the JSON launch record written to OutDir.
const RecordFile = "launch_record.json"

// Record returns the launch summary as a protobuf Struct.
func (r *Result) Record(opts *Options) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":            r.ID.String(),
		"started":       r.Started.UTC().Format(time.RFC3339Nano),
		"policy":        fmt.Sprintf("0x%x", uint32(opts.Policy)),
		"policy_flags":  opts.Policy.String(),
		"es":            opts.Policy.ES(),
		"snp":           opts.SNP,
		"handle":        r.Handle,
		"state":         r.State.String(),
		"measurement":   r.Measurement.String(),
		"launch_digest": fmt.Sprintf("%x", r.LaunchDigest),
		"firmware":      opts.Firmware,
		"firmware_size": r.FirmwareSize,
		"kernel_size":   r.KernelSize,
	})
}

// MarshalRecord returns the launch record in its JSON form.
func (r *Result) MarshalRecord(opts *Options) ([]byte, error) {
	rec, err := r.Record(opts)
	if err != nil {
		return nil, fmt.Errorf("could not build launch record: %w", err)
	}
	return protojson.MarshalOptions{Multiline: true}.Marshal(rec)
}
