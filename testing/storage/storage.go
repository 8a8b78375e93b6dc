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

// Package storage provides an in-memory storagei.Client for tests.
package storage

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/net/context"
)

// Object is the content of one stored object and the canned errors its accessors return.
type Object struct {
	Data     []byte
	ReadErr  error
	WriteErr error
}

// Mock implements storagei.Client over in-memory buckets.
type Mock struct {
	Buckets map[string]map[string]*Object
	// EnsureErrs are the results of EnsureBucketExists per bucket.
	EnsureErrs map[string]error
	// err is returned from all operations.
	err error
}

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

// objectWriter buffers writes and commits them to the Mock on Close.
type objectWriter struct {
	m              *Mock
	bucket, object string
	content        []byte
	writeErr       error
}

func (w *objectWriter) Write(b []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	w.content = append(w.content, b...)
	return len(b), nil
}

func (w *objectWriter) Close() error {
	if w.m.Buckets == nil {
		w.m.Buckets = make(map[string]map[string]*Object)
	}
	if w.m.Buckets[w.bucket] == nil {
		w.m.Buckets[w.bucket] = make(map[string]*Object)
	}
	obj, ok := w.m.Buckets[w.bucket][w.object]
	if !ok {
		obj = &Object{}
		w.m.Buckets[w.bucket][w.object] = obj
	}
	obj.Data = w.content
	return nil
}

func (s *Mock) lookup(bucket, object string) (*Object, bool) {
	obj, ok := s.Buckets[bucket][object]
	return obj, ok
}

// Reader returns a seekable reader over the object's contents.
func (s *Mock) Reader(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	obj, ok := s.lookup(bucket, object)
	if !ok {
		return nil, os.ErrNotExist
	}
	if obj.ReadErr != nil {
		return nil, obj.ReadErr
	}
	return readSeekNopCloser{bytes.NewReader(obj.Data)}, nil
}

// Exists returns whether the object is present.
func (s *Mock) Exists(_ context.Context, bucket, object string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.lookup(bucket, object)
	return ok, nil
}

// Writer returns a writer whose contents replace the object on Close.
func (s *Mock) Writer(_ context.Context, bucket, object string) (io.WriteCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	w := &objectWriter{m: s, bucket: bucket, object: object}
	if obj, ok := s.lookup(bucket, object); ok {
		w.writeErr = obj.WriteErr
	}
	return w, nil
}

// IsNotExists returns whether err is the Mock's not-exists error.
func (s *Mock) IsNotExists(err error) bool {
	return os.IsNotExist(err)
}

// EnsureBucketExists returns the canned result for bucket, or nil.
func (s *Mock) EnsureBucketExists(_ context.Context, bucket string) error {
	if s.err != nil {
		return s.err
	}
	return s.EnsureErrs[bucket]
}

// WithInitialContents returns a Mock holding the given objects in one bucket.
func WithInitialContents(contents map[string][]byte, bucket string) *Mock {
	objs := make(map[string]*Object, len(contents))
	for name, data := range contents {
		objs[name] = &Object{Data: bytes.Clone(data)}
	}
	return &Mock{Buckets: map[string]map[string]*Object{bucket: objs}}
}

// WithError returns a Mock that fails every operation with err.
func WithError(err error) *Mock {
	return &Mock{err: err}
}
