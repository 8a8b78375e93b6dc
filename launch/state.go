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

package launch

import (
	"errors"
	"fmt"

	"github.com/google/sev-launch/sev"
	"golang.org/x/exp/slices"
)

// ErrNotImplemented is returned by operations that exist in the launch protocol but have no
// implementation here: SNP launch beyond initialization and guest migration.
var ErrNotImplemented = errors.New("not implemented")

// State is the position of a guest context in the launch protocol.
type State int

const (
	// UnInit is the state of a new context. No platform command has succeeded.
	UnInit State = iota
	// Init means the platform has initialized the guest's encryption context.
	Init
	// LaunchUpdate means a launch session exists and plaintext may be encrypted into the guest.
	LaunchUpdate
	// LaunchSecret means the launch has been measured and secrets may be injected.
	LaunchSecret
	// Running means the launch is finished and the guest may execute.
	Running
	// SendUpdate means the guest is being migrated out.
	SendUpdate
	// RecieveUpdate means the guest is being migrated in.
	RecieveUpdate
	// Sent means the guest has been migrated out.
	Sent
)

var stateNames = map[State]string{
	UnInit:        "UnInit",
	Init:          "Init",
	LaunchUpdate:  "LaunchUpdate",
	LaunchSecret:  "LaunchSecret",
	Running:       "Running",
	SendUpdate:    "SendUpdate",
	RecieveUpdate: "RecieveUpdate",
	Sent:          "Sent",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Op names a state-changing launch operation.
type Op int

const (
	// OpSevInit initializes an SEV guest context.
	OpSevInit Op = iota
	// OpEsInit initializes an SEV-ES guest context.
	OpEsInit
	// OpSnpInit initializes an SEV-SNP guest context.
	OpSnpInit
	// OpLaunchStart creates the launch session.
	OpLaunchStart
	// OpLaunchUpdateData encrypts a region of guest memory.
	OpLaunchUpdateData
	// OpLaunchUpdateVmsa encrypts the vCPU save areas.
	OpLaunchUpdateVmsa
	// OpLaunchMeasure retrieves the launch measurement.
	OpLaunchMeasure
	// OpLaunchFinish completes the launch.
	OpLaunchFinish
	// OpSendStart begins an outgoing migration.
	OpSendStart
	// OpReceiveStart begins an incoming migration.
	OpReceiveStart
)

var opNames = map[Op]string{
	OpSevInit:          "sev-init",
	OpEsInit:           "es-init",
	OpSnpInit:          "snp-init",
	OpLaunchStart:      "launch-start",
	OpLaunchUpdateData: "launch-update-data",
	OpLaunchUpdateVmsa: "launch-update-vmsa",
	OpLaunchMeasure:    "launch-measure",
	OpLaunchFinish:     "launch-finish",
	OpSendStart:        "send-start",
	OpReceiveStart:     "receive-start",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

type transition struct {
	op   Op
	from State
	to   State
	// unimplemented transitions are part of the protocol but are never driven.
	unimplemented bool
}

var transitions = []transition{
	{op: OpSevInit, from: UnInit, to: Init},
	{op: OpEsInit, from: UnInit, to: Init},
	{op: OpSnpInit, from: UnInit, to: Init},
	{op: OpLaunchStart, from: Init, to: LaunchUpdate},
	{op: OpLaunchUpdateData, from: LaunchUpdate, to: LaunchUpdate},
	{op: OpLaunchUpdateVmsa, from: LaunchUpdate, to: LaunchUpdate},
	{op: OpLaunchMeasure, from: LaunchUpdate, to: LaunchSecret},
	{op: OpLaunchFinish, from: LaunchSecret, to: Running},
	{op: OpSendStart, from: Running, to: SendUpdate, unimplemented: true},
	{op: OpReceiveStart, from: UnInit, to: RecieveUpdate, unimplemented: true},
}

// Next returns the state that op moves a context in state have to, or a *StateError if op is not
// allowed in have.
func Next(op Op, have State) (State, error) {
	i := slices.IndexFunc(transitions, func(t transition) bool { return t.op == op })
	if i < 0 {
		return have, fmt.Errorf("unknown launch operation %v", op)
	}
	t := transitions[i]
	if t.unimplemented {
		return have, fmt.Errorf("%v: %w", op, ErrNotImplemented)
	}
	if t.from != have {
		return have, &StateError{Op: op, Have: have, Want: t.from}
	}
	return t.to, nil
}

// StateError is returned when an operation is invoked in a state that does not allow it. No
// platform command is issued in that case.
type StateError struct {
	Op   Op
	Have State
	Want State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%v requires state %v, but the guest context is in state %v: %v", e.Op, e.Want,
		e.Have, e.Kind().Description())
}

// Kind returns sev.InvalidPlatformState.
func (e *StateError) Kind() sev.Kind { return sev.InvalidPlatformState }

// Is reports whether target is sev.ErrInvalidPlatformState.
func (e *StateError) Is(target error) bool { return target == sev.ErrInvalidPlatformState }
