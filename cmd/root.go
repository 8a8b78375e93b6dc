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

	"github.com/google/sev-launch/cmd/output"
	"github.com/spf13/cobra"
)

func makeRootCmd(ctx0 context.Context, app *AppComponents) *cobra.Command {
	flags := &output.Options{}
	cmd := &cobra.Command{
		Use: "sevlaunch",
		Long: `Command line tool for launching AMD SEV guests

This tool drives the SEV, SEV-ES, and SEV-SNP launch protocol through KVM and reports the
launch measurement.
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.Validate(cmd); err != nil {
				return err
			}
			if app.Global != nil {
				return app.Global.PersistentPreRunE(cmd, args)
			}
			return nil
		},
	}
	cmd.SetContext(output.NewContext(ctx0, flags))
	if app.Global != nil {
		app.Global.AddFlags(cmd)
	}
	flags.AddFlags(cmd)
	return cmd
}
