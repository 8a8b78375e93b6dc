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

// Package output routes user-facing command output to the terminal or to logs.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/logger"
	"github.com/spf13/cobra"
	"golang.org/x/net/context"
)

// ErrNoContext is returned when FromContext cannot find an output.Options in the context.
var ErrNoContext = errors.New("no output context found")

const (
	warningPrefix = "WARNING: "
	errorPrefix   = "ERROR: "
	debugPrefix   = "DEBUG: "
)

// Options controls where and how much a command prints.
type Options struct {
	Quiet   bool
	Verbose bool
	// UseLogs sends all output through the logger instead of the terminal.
	UseLogs bool
	// Overwrite allows replacing files a previous launch wrote.
	Overwrite bool
	// Out and Err override stdout and the debug stream.
	Out io.Writer
	Err io.Writer
}

// AddFlags adds the output flags to cmd.
func (opts *Options) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&opts.Quiet, "quiet", false,
		"Print nothing if command is successful")
	cmd.PersistentFlags().BoolVar(&opts.Verbose, "verbose", false,
		"Print additional info to stdout")
	cmd.PersistentFlags().BoolVar(&opts.UseLogs, "use_logs", false,
		"Print messages to log instead of stdout/stderr")
	cmd.PersistentFlags().BoolVar(&opts.Overwrite, "overwrite", false,
		"Allow replacing measurement files left by a previous launch.")
}

// Validate returns an error if the flags conflict.
func (opts *Options) Validate(cmd *cobra.Command) error {
	if opts.Quiet && opts.Verbose {
		return fmt.Errorf("cannot specify both --quiet and --verbose")
	}
	cmd.SilenceUsage = true
	return nil
}

type outputKeyType struct{}

var outputKey outputKeyType

// NewContext returns ctx extended with opts.
func NewContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, outputKey, opts)
}

// FromContext returns the output options in ctx.
func FromContext(ctx context.Context) (*Options, error) {
	opts, ok := ctx.Value(outputKey).(*Options)
	if !ok {
		return nil, ErrNoContext
	}
	return opts, nil
}

// AllowOverwrite returns whether ctx permits replacing existing files.
func AllowOverwrite(ctx context.Context) bool {
	o, _ := FromContext(ctx)
	return o != nil && o.Overwrite
}

// sink is a destination for output. A nil sink means the logger.
type sink struct {
	w   io.Writer
	tty bool
}

var (
	stdoutSink  = &sink{w: os.Stdout, tty: isTty(os.Stdout)}
	discardSink = &sink{w: io.Discard}
)

type noContextWriter struct{}

func (noContextWriter) Write([]byte) (int, error) { return 0, ErrNoContext }

func isTty(f *os.File) bool {
	s, err := f.Stat()
	return err == nil && s.Mode()&os.ModeCharDevice != 0
}

func choose(ctx context.Context, debug bool) *sink {
	opts, err := FromContext(ctx)
	switch {
	case err != nil:
		return &sink{w: noContextWriter{}}
	case opts.UseLogs:
		return nil
	case opts.Quiet:
		return discardSink
	case debug && opts.Verbose:
		return stdoutSink
	case debug && opts.Err != nil:
		return &sink{w: opts.Err}
	case debug:
		return discardSink
	case opts.Out != nil:
		return &sink{w: opts.Out}
	}
	return stdoutSink
}

func (s *sink) prefix(color int, p string) string {
	if s.tty {
		return fmt.Sprintf("\033[1;%dm%s\033[0m", color, p)
	}
	return p
}

// printf writes one line to s. The discard sink reports that nothing was written.
func (s *sink) printf(format string, args ...any) (int, error) {
	if s == discardSink {
		return 0, nil
	}
	return fmt.Fprintf(s.w, format+"\n", args...)
}

// Infof prints a message for the user.
func Infof(ctx context.Context, format string, args ...any) (int, error) {
	if s := choose(ctx, false); s != nil {
		return s.printf(format, args...)
	}
	logger.Infof(format, args...)
	return 1, nil
}

// Warningf prints a warning for the user.
func Warningf(ctx context.Context, format string, args ...any) (int, error) {
	if s := choose(ctx, false); s != nil {
		return s.printf(s.prefix(33, warningPrefix)+format, args...)
	}
	logger.Warningf(format, args...)
	return 1, nil
}

// Errorf prints an error for the user.
func Errorf(ctx context.Context, format string, args ...any) (int, error) {
	if s := choose(ctx, false); s != nil {
		return s.printf(s.prefix(31, errorPrefix)+format, args...)
	}
	logger.Errorf(format, args...)
	return 1, nil
}

type onRender struct{ rendered bool }

func (o *onRender) String() string {
	o.rendered = true
	return ""
}

// Debugf prints a message only in verbose mode.
func Debugf(ctx context.Context, format string, args ...any) (int, error) {
	if s := choose(ctx, true); s != nil {
		return s.printf(debugPrefix+format, args...)
	}
	var w onRender
	logger.V(1).Infof(format+"%v", append(args, &w)...)
	if w.rendered {
		return 1, nil
	}
	return 0, nil
}
