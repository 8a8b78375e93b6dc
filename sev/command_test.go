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

package sev

import (
	"errors"
	"os"
	"syscall"
	"testing"

	sgabi "github.com/google/go-sev-guest/abi"
	"github.com/google/logger"
)

func TestMain(m *testing.M) {
	logger.Init("sev", false, false, os.Stderr)
	os.Exit(m.Run())
}

type routerFunc func(sevFd uintptr, cmd Command) (sgabi.SevFirmwareStatus, error)

func (f routerFunc) EncryptOp(sevFd uintptr, cmd Command) (sgabi.SevFirmwareStatus, error) {
	return f(sevFd, cmd)
}

func TestDispatcherSubmit(t *testing.T) {
	tcs := []struct {
		name      string
		status    sgabi.SevFirmwareStatus
		err       error
		wantKind  Kind
		wantErrno syscall.Errno
	}{
		{name: "success"},
		{name: "policy failure", status: 0x07, err: syscall.EIO, wantKind: PolicyFailure},
		{name: "rb mode exited", status: 0x1f, err: syscall.EIO, wantKind: RbModeExited},
		{name: "invalid key", status: 0x27, err: syscall.EIO, wantKind: InvalidKey},
		{name: "unrecognized", status: 0xff, err: syscall.EIO, wantKind: UnrecognizedCode},
		{name: "transport", err: syscall.ENOTTY, wantErrno: syscall.ENOTTY},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			d := &Dispatcher{
				SevFd: 42,
				Router: routerFunc(func(sevFd uintptr, cmd Command) (sgabi.SevFirmwareStatus, error) {
					calls++
					if sevFd != 42 {
						t.Errorf("EncryptOp(%d, _) sevFd = %d, want 42", sevFd, sevFd)
					}
					return tc.status, tc.err
				}),
			}
			err := d.Submit(&LaunchFinishCmd{})
			if calls != 1 {
				t.Errorf("Submit called the router %d times, want exactly 1", calls)
			}
			if tc.err == nil {
				if err != nil {
					t.Fatalf("Submit() = %v, want nil", err)
				}
				return
			}
			if tc.wantKind != 0 {
				var ferr *FirmwareError
				if !errors.As(err, &ferr) || ferr.Kind() != tc.wantKind || ferr.Command != CmdLaunchFinish {
					t.Errorf("Submit() = %v, want FirmwareError of kind %v", err, tc.wantKind)
				}
				return
			}
			var terr *TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("Submit() = %v, want TransportError", err)
			}
			if errno, ok := terr.Errno(); !ok || errno != tc.wantErrno {
				t.Errorf("Submit() errno = %v, want %v", errno, tc.wantErrno)
			}
		})
	}
}

func TestCommandIDs(t *testing.T) {
	tcs := []struct {
		cmd  Command
		want CommandID
		name string
	}{
		{&InitCmd{}, CmdInit, "KVM_SEV_INIT"},
		{&EsInitCmd{}, CmdEsInit, "KVM_SEV_ES_INIT"},
		{&SnpInitCmd{}, CmdSnpInit, "KVM_SEV_SNP_INIT"},
		{&LaunchStartCmd{}, CmdLaunchStart, "KVM_SEV_LAUNCH_START"},
		{&LaunchUpdateDataCmd{}, CmdLaunchUpdateData, "KVM_SEV_LAUNCH_UPDATE_DATA"},
		{&LaunchUpdateVmsaCmd{}, CmdLaunchUpdateVmsa, "KVM_SEV_LAUNCH_UPDATE_VMSA"},
		{&LaunchMeasureCmd{}, CmdLaunchMeasure, "KVM_SEV_LAUNCH_MEASURE"},
		{&LaunchFinishCmd{}, CmdLaunchFinish, "KVM_SEV_LAUNCH_FINISH"},
	}
	for _, tc := range tcs {
		if got := tc.cmd.ID(); got != tc.want || got.String() != tc.name {
			t.Errorf("%T.ID() = %v (%d), want %v (%d)", tc.cmd, got, uint32(got), tc.name, uint32(tc.want))
		}
	}
	if got, want := CommandID(99).String(), "KVM_SEV_CMD(99)"; got != want {
		t.Errorf("CommandID(99).String() = %q, want %q", got, want)
	}
}

func TestPolicy(t *testing.T) {
	tcs := []struct {
		policy Policy
		wantES bool
		want   string
	}{
		{policy: 0, want: "0x0"},
		{policy: PolicyNoDebug | PolicyNoKeySharing, want: "0x3(NODBG|NOKS)"},
		{policy: PolicyES, wantES: true, want: "0x4(ES)"},
		{policy: 0x3f, wantES: true, want: "0x3f(NODBG|NOKS|ES|NOSEND|DOMAIN|SEV)"},
	}
	for _, tc := range tcs {
		if got := tc.policy.ES(); got != tc.wantES {
			t.Errorf("Policy(0x%x).ES() = %v, want %v", uint32(tc.policy), got, tc.wantES)
		}
		if got := tc.policy.String(); got != tc.want {
			t.Errorf("Policy(0x%x).String() = %q, want %q", uint32(tc.policy), got, tc.want)
		}
	}
}
