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
	"fmt"

	"github.com/google/sev-launch/boot"
	"github.com/google/sev-launch/kvm"
	"github.com/google/sev-launch/sev"
	"github.com/google/sev-launch/storage/local"
	"github.com/spf13/cobra"
)

const defaultMemoryMiB = 512

// LaunchCommand is the base component of the launch subcommand.
type LaunchCommand struct {
	noEncryption bool
	memoryMiB    uint64
}

// AddFlags adds the launch flags and installs boot.Options in the command context.
func (c *LaunchCommand) AddFlags(cmd *cobra.Command) {
	opts := &boot.Options{}
	cmd.SetContext(boot.NewContext(cmd.Context(), opts))
	flags := cmd.PersistentFlags()
	addFirmwareFlag(cmd, &opts.Firmware)
	addSNPFlag(cmd, &opts.SNP)
	flags.StringVar(&opts.Kernel, "kernel", "", "Path to a kernel image to load at 0x1000000.")
	flags.StringVar(&opts.Session, "session", "", "Path to the guest owner's launch session blob.")
	flags.StringVar(&opts.DHCert, "dh_cert", "", "Path to the guest owner's Diffie-Hellman certificate.")
	flags.AddGoFlag(policyVar(&opts.Policy, "policy", sev.PolicyNoDebug|sev.PolicyNoKeySharing,
		"The guest policy. Bit 0x4 selects SEV-ES."))
	flags.BoolVar(&c.noEncryption, "no_encryption", false,
		"If true, the guest is loaded without memory encryption and no launch commands are sent.")
	flags.Uint64Var(&c.memoryMiB, "memory_mib", defaultMemoryMiB, "Guest memory size in MiB.")
	flags.StringVar(&opts.DevicePath, "sev_device", kvm.DefaultDevicePath, "Path to the SEV platform device.")
	flags.StringVar(&opts.OutDir, "out_dir", "",
		"Directory in which the launch measurement and digest are written. Empty writes nothing.")
}

// PersistentPreRunE checks the launch flags.
func (c *LaunchCommand) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	opts, err := boot.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	if opts.Firmware == "" {
		return errors.New("--firmware is required")
	}
	if opts.SNP && !opts.Policy.ES() {
		return fmt.Errorf("--snp requires an SEV-ES policy, got %v", opts.Policy)
	}
	minMiB := uint64(boot.MinMemorySize >> 20)
	if c.memoryMiB < minMiB {
		return fmt.Errorf("--memory_mib must be at least %d, got %d", minMiB, c.memoryMiB)
	}
	opts.Encryption = !c.noEncryption
	opts.MemorySize = c.memoryMiB << 20
	return nil
}

// InitContext fills in the host and storage the launch runs against unless already set.
func (c *LaunchCommand) InitContext(ctx context.Context) (context.Context, error) {
	opts, err := boot.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Host == nil {
		opts.Host = boot.KVMHost{}
	}
	if opts.Storage == nil {
		opts.Storage = &local.StorageClient{}
	}
	return ctx, nil
}

func makeLaunchCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	cmp := Compose(outputComponent(), app.Global, &LaunchCommand{}, app.Launch)
	cmd := &cobra.Command{
		Use: "launch [flags]",
		Long: `Launches a guest from a firmware image and reports its launch measurement.

The guest is created through /dev/kvm. With encryption enabled, the firmware is encrypted into the
guest with the SEV launch protocol and the resulting measurement is printed.`,
		PersistentPreRunE: cmp.PersistentPreRunE,
		RunE: ComposeRun(cmp, func(ctx context.Context) error {
			_, err := boot.Run(ctx)
			return err
		}),
	}
	cmd.SetContext(ctx)
	cmp.AddFlags(cmd)
	return cmd
}
