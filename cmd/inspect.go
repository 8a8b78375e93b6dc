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
	"context"
	"errors"

	"github.com/google/sev-launch/cmd/output"
	"github.com/google/sev-launch/ovmf"
	"github.com/google/sev-launch/storage/local"
	"github.com/google/sev-launch/storage/ops"
	"github.com/google/sev-launch/storage/storagei"
	"github.com/spf13/cobra"
)

type inspectOptions struct {
	Firmware string
	SNP      bool
	Storage  storagei.Client
}

type inspectKeyType struct{}

var inspectKey inspectKeyType

func inspectFromContext(ctx context.Context) (*inspectOptions, error) {
	opts, ok := ctx.Value(inspectKey).(*inspectOptions)
	if !ok {
		return nil, errors.New("no inspect context found")
	}
	return opts, nil
}

func inspectBase() CommandComponent {
	return &PartialComponent{
		FAddFlags: func(cmd *cobra.Command) {
			opts := &inspectOptions{}
			cmd.SetContext(context.WithValue(cmd.Context(), inspectKey, opts))
			addFirmwareFlag(cmd, &opts.Firmware)
			addSNPFlag(cmd, &opts.SNP)
		},
		FPersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := inspectFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Firmware == "" {
				return errors.New("--firmware is required")
			}
			return nil
		},
		FInitContext: func(ctx context.Context) (context.Context, error) {
			opts, err := inspectFromContext(ctx)
			if err != nil {
				return nil, err
			}
			if opts.Storage == nil {
				opts.Storage = &local.StorageClient{}
			}
			return ctx, nil
		},
	}
}

func inspectFirmware(ctx context.Context) error {
	opts, err := inspectFromContext(ctx)
	if err != nil {
		return err
	}
	firmware, err := ops.ReadFile(ctx, opts.Storage, "", opts.Firmware)
	if err != nil {
		return err
	}
	data, err := ovmf.Inspect(firmware, true, opts.SNP)
	if err != nil {
		return err
	}
	rip, csBase, err := data.ResetVector()
	if err != nil {
		return err
	}
	output.Infof(ctx, "SEV-ES AP reset vector: RIP 0x%x, CS base 0x%x", rip, csBase)
	for _, s := range data.Sections {
		output.Infof(ctx, "SNP section %s: [0x%x, +0x%x)", ovmf.SectionKindString(s.Kind), s.Address, s.Length)
	}
	return nil
}

func makeInspectCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	cmp := Compose(outputComponent(), app.Global, inspectBase(), app.Inspect)
	cmd := &cobra.Command{
		Use:               "inspect [flags]",
		Long:              `Prints the SEV-ES reset vector and SEV-SNP metadata sections of a firmware image.`,
		PersistentPreRunE: cmp.PersistentPreRunE,
		RunE:              ComposeRun(cmp, inspectFirmware),
	}
	cmd.SetContext(ctx)
	cmp.AddFlags(cmd)
	return cmd
}
