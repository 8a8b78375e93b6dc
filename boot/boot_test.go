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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/logger"
	"github.com/google/sev-launch/cmd/output"
	"github.com/google/sev-launch/cpuid"
	"github.com/google/sev-launch/guestmem"
	"github.com/google/sev-launch/launch"
	"github.com/google/sev-launch/sev"
	"github.com/google/sev-launch/testing/fakeovmf"
	"github.com/google/sev-launch/testing/fakeplatform"
	"github.com/google/sev-launch/testing/match"
	"github.com/google/sev-launch/storage/storagei"
	"github.com/google/sev-launch/testing/storage"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestMain(m *testing.M) {
	logger.Init("boot", false, false, os.Stderr)
	os.Exit(m.Run())
}

type fakeHost struct {
	platform  *fakeplatform.Platform
	device    *fakeplatform.Device
	createErr error
	closed    int
	firmware  []byte
	kernel    []byte
}

func (h *fakeHost) CreateGuest(uint64) (*Guest, error) {
	if h.createErr != nil {
		return nil, h.createErr
	}
	h.firmware = make([]byte, 0x4000)
	h.kernel = make([]byte, 0x4000)
	mem, err := guestmem.New(
		guestmem.Region{Start: launch.FirmwareAddr, Host: h.firmware},
		guestmem.Region{Start: launch.KernelAddr, Host: h.kernel})
	if err != nil {
		return nil, err
	}
	return &Guest{
		VM:     h.platform,
		CPUID:  cpuid.Static{{Function: cpuid.EncryptedMemoryLeaf, EBX: 47}},
		Memory: mem,
		Closers: []func() error{func() error {
			h.closed++
			return nil
		}},
	}, nil
}

func (h *fakeHost) open(vm sev.Router, _ string, opts launch.Options) (*launch.Context, error) {
	if opts.Encryption {
		opts.Device = h.device
	}
	return launch.New(vm, opts)
}

func newHost() *fakeHost {
	return &fakeHost{
		platform: &fakeplatform.Platform{Handle: 4, Measurement: sev.Measurement{0xab, 0xcd}},
		device:   &fakeplatform.Device{FD: 11},
	}
}

func testContext(opts *Options, out *bytes.Buffer, overwrite bool) context.Context {
	ctx := output.NewContext(context.Background(), &output.Options{Out: out, Err: out, Overwrite: overwrite})
	return NewContext(ctx, opts)
}

func inputs(fw []byte) *storage.Mock {
	return storage.WithInitialContents(map[string][]byte{
		"OVMF.fd": fw,
		"bzImage": bytes.Repeat([]byte{0x5a}, 0x123),
		"session": []byte("session blob"),
		"godh":    []byte("dh cert"),
	}, "")
}

// countingStorage counts the readers opened per object.
type countingStorage struct {
	storagei.Client
	reads map[string]int
}

func (c *countingStorage) Reader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	c.reads[object]++
	return c.Client.Reader(ctx, bucket, object)
}

func TestRun(t *testing.T) {
	fw := fakeovmf.Image(t, 0x1000, fakeovmf.SevEsAddrVal, nil)
	h := newHost()
	s := inputs(fw)
	counted := &countingStorage{Client: s, reads: map[string]int{}}
	opts := &Options{
		Firmware:   "OVMF.fd",
		Kernel:     "bzImage",
		Session:    "session",
		DHCert:     "godh",
		Policy:     sev.PolicyNoDebug | sev.PolicyES,
		Encryption: true,
		OutDir:     "out",
		Storage:    counted,
		Host:       h,
		Open:       h.open,
	}
	var out bytes.Buffer
	result, err := Run(testContext(opts, &out, false))
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	wantCmds := []sev.CommandID{sev.CmdEsInit, sev.CmdLaunchStart, sev.CmdLaunchUpdateData,
		sev.CmdLaunchUpdateVmsa, sev.CmdLaunchMeasure, sev.CmdLaunchFinish}
	if diff := cmp.Diff(wantCmds, h.platform.Submitted); diff != "" {
		t.Errorf("submitted commands diff (-want +got):\n%s", diff)
	}
	if result.State != launch.Running || result.Handle != 4 || result.Measurement != h.platform.Measurement {
		t.Errorf("Run() = %+v, want a running guest with handle 4 and the platform measurement", result)
	}
	if result.FirmwareSize != uint64(len(fw)) || result.KernelSize != 0x123 {
		t.Errorf("Run() sizes = (0x%x, 0x%x), want (0x%x, 0x123)", result.FirmwareSize, result.KernelSize, len(fw))
	}
	if !bytes.Equal(h.firmware[:len(fw)], fw) || h.kernel[0x122] != 0x5a {
		t.Error("firmware or kernel was not loaded")
	}
	if got := counted.reads["OVMF.fd"]; got != 1 {
		t.Errorf("firmware was read %d times, want 1", got)
	}
	if got := string(h.platform.Started.Session); got != "session blob" {
		t.Errorf("LAUNCH_START session = %q, want %q", got, "session blob")
	}
	if h.closed != 1 || !h.device.Closed {
		t.Errorf("guest closed %d times, device closed %v, want 1, true", h.closed, h.device.Closed)
	}
	got := string(s.Buckets["out"][MeasurementFile].Data)
	if want := result.Measurement.String() + "\n"; got != want {
		t.Errorf("%s = %q, want %q", MeasurementFile, got, want)
	}
	if got, want := string(s.Buckets["out"][DigestFile].Data), fmt.Sprintf("%x\n", result.LaunchDigest); got != want {
		t.Errorf("%s = %q, want %q", DigestFile, got, want)
	}
	rec := &structpb.Struct{}
	if err := protojson.Unmarshal(s.Buckets["out"][RecordFile].Data, rec); err != nil {
		t.Fatalf("%s does not parse: %v", RecordFile, err)
	}
	fields := rec.GetFields()
	if got := fields["measurement"].GetStringValue(); got != result.Measurement.String() {
		t.Errorf("record measurement = %q, want %q", got, result.Measurement.String())
	}
	if got := fields["id"].GetStringValue(); got != result.ID.String() {
		t.Errorf("record id = %q, want %q", got, result.ID.String())
	}
	if fields["handle"].GetNumberValue() != 4 || !fields["es"].GetBoolValue() || fields["state"].GetStringValue() != "Running" {
		t.Errorf("record = %v, want handle 4, es, and state Running", rec)
	}
	if !strings.Contains(out.String(), "Measurement: abcd") {
		t.Errorf("output %q does not report the measurement", out.String())
	}
}

func TestRunOverwrite(t *testing.T) {
	for _, overwrite := range []bool{false, true} {
		t.Run(fmt.Sprintf("overwrite=%v", overwrite), func(t *testing.T) {
			h := newHost()
			s := inputs(make([]byte, 0x100))
			s.Buckets["out"] = map[string]*storage.Object{MeasurementFile: {Data: []byte("old")}}
			opts := &Options{Firmware: "OVMF.fd", Encryption: true, OutDir: "out", Storage: s, Host: h, Open: h.open}
			_, err := Run(testContext(opts, &bytes.Buffer{}, overwrite))
			if overwrite {
				if err != nil {
					t.Fatalf("Run() = %v, want nil", err)
				}
				if string(s.Buckets["out"][MeasurementFile].Data) == "old" {
					t.Error("measurement was not overwritten")
				}
				return
			}
			if !errors.Is(err, os.ErrExist) {
				t.Errorf("Run() = %v, want %v", err, os.ErrExist)
			}
		})
	}
}

func TestRunEncryptionDisabled(t *testing.T) {
	h := newHost()
	fw := bytes.Repeat([]byte{1}, 0x100)
	s := inputs(fw)
	opts := &Options{Firmware: "OVMF.fd", Kernel: "bzImage", OutDir: "out", Storage: s, Host: h, Open: h.open}
	result, err := Run(testContext(opts, &bytes.Buffer{}, false))
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(h.platform.Submitted) != 0 || h.device.Closed {
		t.Errorf("encryption disabled but submitted %v, device used %v", h.platform.Submitted, h.device.Closed)
	}
	if result.State != launch.UnInit || !result.Measurement.IsZero() {
		t.Errorf("Run() = %+v, want an unmeasured guest in UnInit", result)
	}
	if !bytes.Equal(h.firmware[:len(fw)], fw) {
		t.Error("firmware was not loaded")
	}
	if _, ok := s.Buckets["out"]; ok {
		t.Error("Run() wrote measurement files with encryption disabled")
	}
}

func TestRunSnp(t *testing.T) {
	h := newHost()
	opts := &Options{Firmware: "OVMF.fd", SNP: true, Policy: sev.PolicyES, Encryption: true,
		Storage: inputs(make([]byte, 0x100)), Host: h, Open: h.open}
	result, err := Run(testContext(opts, &bytes.Buffer{}, false))
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if diff := cmp.Diff([]sev.CommandID{sev.CmdSnpInit}, h.platform.Submitted); diff != "" {
		t.Errorf("submitted commands diff (-want +got):\n%s", diff)
	}
	if result.State != launch.Init {
		t.Errorf("Run() state = %v, want Init", result.State)
	}
}

func TestRunErrors(t *testing.T) {
	tcs := []struct {
		name    string
		opts    func(*fakeHost) *Options
		wantErr string
		closed  int
	}{
		{
			name:    "no firmware",
			opts:    func(h *fakeHost) *Options { return &Options{Storage: inputs(nil), Host: h} },
			wantErr: ErrNoFirmware.Error(),
		},
		{
			name: "create guest",
			opts: func(h *fakeHost) *Options {
				h.createErr = errors.New("no kvm")
				return &Options{Firmware: "OVMF.fd", Storage: inputs(nil), Host: h}
			},
			wantErr: "could not create guest: no kvm",
		},
		{
			name: "launch start rejected",
			opts: func(h *fakeHost) *Options {
				h.platform.Responses = map[sev.CommandID]fakeplatform.Response{sev.CmdLaunchStart: {Status: 0x07}}
				return &Options{Firmware: "OVMF.fd", Encryption: true, Storage: inputs(make([]byte, 0x10)), Host: h, Open: h.open}
			},
			wantErr: "failed in state Init",
			closed:  1,
		},
		{
			name: "missing kernel",
			opts: func(h *fakeHost) *Options {
				return &Options{Firmware: "OVMF.fd", Kernel: "vmlinuz", Encryption: true,
					Storage: inputs(make([]byte, 0x10)), Host: h, Open: h.open}
			},
			wantErr: "could not open file \"vmlinuz\"",
			closed:  1,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			h := newHost()
			_, err := Run(testContext(tc.opts(h), &bytes.Buffer{}, false))
			if !match.Error(err, tc.wantErr) {
				t.Errorf("Run() = %v, want %q", err, tc.wantErr)
			}
			if h.closed != tc.closed {
				t.Errorf("guest closed %d times, want %d", h.closed, tc.closed)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoContext) {
		t.Errorf("FromContext() = %v, want %v", err, ErrNoContext)
	}
	if _, err := Run(context.Background()); !errors.Is(err, ErrNoContext) {
		t.Errorf("Run() = %v, want %v", err, ErrNoContext)
	}
}

func TestGuestClose(t *testing.T) {
	var order []int
	g := &Guest{Closers: []func() error{
		func() error { order = append(order, 1); return errors.New("first") },
		func() error { order = append(order, 2); return nil },
		func() error { order = append(order, 3); return errors.New("third") },
	}}
	err := g.Close()
	if diff := cmp.Diff([]int{1, 2, 3}, order); diff != "" {
		t.Errorf("close order diff (-want +got):\n%s", diff)
	}
	if !match.ErrorAll(err, "first", "third") {
		t.Errorf("Close() = %v, want both errors", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestRecord(t *testing.T) {
	r := &Result{Handle: 7, State: launch.LaunchSecret, FirmwareSize: 0x200000}
	opts := &Options{Firmware: "OVMF.fd", Policy: sev.PolicyNoDebug | sev.PolicyES, SNP: true}
	rec, err := r.Record(opts)
	if err != nil {
		t.Fatalf("Record() = %v", err)
	}
	fields := rec.GetFields()
	if got, want := fields["policy"].GetStringValue(), "0x5"; got != want {
		t.Errorf("policy = %q, want %q", got, want)
	}
	if got, want := fields["policy_flags"].GetStringValue(), "0x5(NODBG|ES)"; got != want {
		t.Errorf("policy_flags = %q, want %q", got, want)
	}
	if fields["firmware_size"].GetNumberValue() != 0x200000 || !fields["snp"].GetBoolValue() {
		t.Errorf("record = %v, want firmware_size 0x200000 and snp", rec)
	}
	b, err := r.MarshalRecord(opts)
	if err != nil || !bytes.Contains(b, []byte(`"state": "LaunchSecret"`)) && !bytes.Contains(b, []byte(`"state":"LaunchSecret"`)) {
		t.Errorf("MarshalRecord() = %s, %v, want the state field", b, err)
	}
}
