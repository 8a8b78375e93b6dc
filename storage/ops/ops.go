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

// Package ops provides common operations on a storagei.Client.
package ops

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/sev-launch/storage/storagei"
)

// WriteFile replaces the contents of object name in bucket with contents.
func WriteFile(ctx context.Context, s storagei.Client, bucket, name string, contents []byte) error {
	w, err := s.Writer(ctx, bucket, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(contents); err != nil {
		w.Close()
		return fmt.Errorf("could not write file %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("could not close file %q: %w", name, err)
	}
	return nil
}

// ReadFile returns the contents of object name in bucket.
func ReadFile(ctx context.Context, s storagei.Client, bucket, name string) ([]byte, error) {
	r, err := s.Reader(ctx, bucket, name)
	if s.IsNotExists(err) {
		return nil, fmt.Errorf("file \"%s/%s\" does not exist: %w", bucket, name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", name, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

// OpenSeekable opens object name in bucket for seeking. Objects whose readers cannot seek are
// read into memory.
func OpenSeekable(ctx context.Context, s storagei.Client, bucket, name string) (io.ReadSeekCloser, error) {
	r, err := s.Reader(ctx, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("could not open file %q: %w", name, err)
	}
	if rs, ok := r.(io.ReadSeekCloser); ok {
		return rs, nil
	}
	defer r.Close()
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", name, err)
	}
	return nopCloser{bytes.NewReader(contents)}, nil
}
