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

// Package local provides a storagei.Client on the local filesystem.
package local

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/google/sev-launch/cmd/output"
	"golang.org/x/net/context"
)

const (
	filePerm os.FileMode = 0644
	dirPerm  os.FileMode = 0755
)

// StorageClient serves objects from the local filesystem. Objects live at Root/bucket/object. An
// empty Root and bucket make object an ordinary path, relative or absolute.
type StorageClient struct {
	Root string
}

func (s *StorageClient) localPath(bucket, object string) string {
	return path.Join(s.Root, bucket, object)
}

// Reader opens the given object for reading. The returned reader is an *os.File, so it also
// supports seeking.
func (s *StorageClient) Reader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	p := s.localPath(bucket, object)
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	output.Debugf(ctx, "opened reader for %s", p)
	return f, nil
}

// Writer creates or truncates the given object for writing, creating parent directories as
// needed.
func (s *StorageClient) Writer(ctx context.Context, bucket, object string) (io.WriteCloser, error) {
	p := s.localPath(bucket, object)
	if dir, _ := path.Split(p); dir != "" {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("could not prepare directory for object %s in bucket %s: %w", object, bucket, err)
		}
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, err
	}
	output.Debugf(ctx, "opened writer for %s", p)
	return f, nil
}

// Exists returns whether the given object exists.
func (s *StorageClient) Exists(_ context.Context, bucket, object string) (bool, error) {
	_, err := os.Stat(s.localPath(bucket, object))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// IsNotExists returns whether err means the object does not exist.
func (s *StorageClient) IsNotExists(err error) bool {
	return os.IsNotExist(err)
}

// EnsureBucketExists creates the bucket directory if it does not exist.
func (s *StorageClient) EnsureBucketExists(_ context.Context, bucket string) error {
	return os.MkdirAll(path.Join(s.Root, bucket), dirPerm)
}
