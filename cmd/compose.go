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

// Package cmd defines the sevlaunch command line. Subcommands are assembled from
// CommandComponents so that deployments can add flags and context on top of the base behavior.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// CommandComponent contributes flags, validation, and context to a command.
type CommandComponent interface {
	// InitContext extends the given context with whatever else the component needs before execution.
	// It runs after all flag validation, so expensive setup belongs here.
	InitContext(ctx context.Context) (context.Context, error)
	// AddFlags adds any implementation-specific flags for this command component.
	AddFlags(cmd *cobra.Command)
	// PersistentPreRunE returns an error if the results of the parsed flags constitute an error.
	PersistentPreRunE(cmd *cobra.Command, args []string) error
}

// AppComponents are the extension points of the sevlaunch application. Nil components are skipped.
type AppComponents struct {
	// Global provides flags, validation, and context for every command.
	Global CommandComponent
	// Launch runs after the base launch component, so it may replace the host or storage it chose.
	Launch CommandComponent
	// Inspect runs after the base inspect component.
	Inspect CommandComponent
}

// MakeApp returns the root command with all subcommands attached.
func MakeApp(ctx context.Context, app *AppComponents) *cobra.Command {
	root := makeRootCmd(ctx, app)
	root.AddCommand(makeLaunchCmd(root.Context(), app))
	root.AddCommand(makeInspectCmd(root.Context(), app))
	return root
}

// ComposedComponent applies each of its components in order.
type ComposedComponent struct {
	Components []CommandComponent
}

// Compose returns a component that applies cmps in order, skipping nils.
func Compose(cmps ...CommandComponent) *ComposedComponent { return &ComposedComponent{cmps} }

func (c *ComposedComponent) each(f func(CommandComponent) error) error {
	for _, cmp := range c.Components {
		if cmp == nil {
			continue
		}
		if err := f(cmp); err != nil {
			return err
		}
	}
	return nil
}

// InitContext threads ctx through every component's InitContext.
func (c *ComposedComponent) InitContext(ctx context.Context) (context.Context, error) {
	err := c.each(func(cmp CommandComponent) (err error) {
		ctx, err = cmp.InitContext(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ctx, nil
}

// AddFlags adds every component's flags.
func (c *ComposedComponent) AddFlags(cmd *cobra.Command) {
	c.each(func(cmp CommandComponent) error {
		cmp.AddFlags(cmd)
		return nil
	})
}

// PersistentPreRunE validates with every component, stopping at the first error.
func (c *ComposedComponent) PersistentPreRunE(cmd *cobra.Command, args []string) error {
	return c.each(func(cmp CommandComponent) error { return cmp.PersistentPreRunE(cmd, args) })
}

// PartialComponent is a CommandComponent built from optional functions.
type PartialComponent struct {
	FInitContext       func(ctx context.Context) (context.Context, error)
	FAddFlags          func(cmd *cobra.Command)
	FPersistentPreRunE func(cmd *cobra.Command, args []string) error
}

// InitContext calls FInitContext if set.
func (p *PartialComponent) InitContext(ctx context.Context) (context.Context, error) {
	if p.FInitContext == nil {
		return ctx, nil
	}
	return p.FInitContext(ctx)
}

// AddFlags calls FAddFlags if set.
func (p *PartialComponent) AddFlags(cmd *cobra.Command) {
	if p.FAddFlags != nil {
		p.FAddFlags(cmd)
	}
}

// PersistentPreRunE calls FPersistentPreRunE if set.
func (p *PartialComponent) PersistentPreRunE(cmd *cobra.Command, args []string) error {
	if p.FPersistentPreRunE == nil {
		return nil
	}
	return p.FPersistentPreRunE(cmd, args)
}

// RunFn is a cobra RunE function.
type RunFn func(*cobra.Command, []string) error

// ComposeRun returns a RunE that initializes cmp's context and then calls run with it.
func ComposeRun(cmp CommandComponent, run func(context.Context) error) RunFn {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, err := cmp.InitContext(cmd.Context())
		if err != nil {
			return err
		}
		return run(ctx)
	}
}
