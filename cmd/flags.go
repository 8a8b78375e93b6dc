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

package cmd

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/google/sev-launch/cmd/output"
	"github.com/google/sev-launch/sev"
	"github.com/spf13/cobra"
)

func addFirmwareFlag(cmd *cobra.Command, f *string) {
	cmd.PersistentFlags().StringVar(f, "firmware", "", "Path to the OVMF firmware image")
}

func addSNPFlag(cmd *cobra.Command, f *bool) {
	cmd.PersistentFlags().BoolVar(f, "snp", false, "If true, the guest is launched with SEV-SNP.")
}

type policyFlag struct {
	v *sev.Policy
}

func (p *policyFlag) String() string {
	if p.v == nil {
		return "<unset>"
	}
	return p.v.String()
}

func (p *policyFlag) Set(value string) error {
	v, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return fmt.Errorf("policy must be a 32-bit integer, got %q", value)
	}
	*p.v = sev.Policy(v)
	return nil
}

func policyVar(v *sev.Policy, name string, defaultValue sev.Policy, usage string) *flag.Flag {
	*v = defaultValue
	return &flag.Flag{
		Name:     name,
		Value:    &policyFlag{v: v},
		Usage:    usage,
		DefValue: fmt.Sprintf("0x%x", uint32(defaultValue)),
	}
}

// outputComponent validates the root output flags for subcommands, whose PersistentPreRunE
// replaces the root's.
func outputComponent() CommandComponent {
	return &PartialComponent{
		FPersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := output.FromContext(cmd.Context())
			if err != nil {
				return err
			}
			return opts.Validate(cmd)
		},
	}
}
