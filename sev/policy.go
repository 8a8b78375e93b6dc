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
	"fmt"
	"strings"
)

// Policy is the guest owner's SEV guest policy bitmask from the AMD SEV API.
type Policy uint32

const (
	// PolicyNoDebug disallows debugging of the guest.
	PolicyNoDebug Policy = 1 << iota
	// PolicyNoKeySharing disallows sharing keys with other guests.
	PolicyNoKeySharing
	// PolicyES requires SEV-ES.
	PolicyES
	// PolicyNoSend disallows sending the guest to another platform.
	PolicyNoSend
	// PolicyDomain disallows sending the guest to a platform outside the domain.
	PolicyDomain
	// PolicySEV disallows sending the guest to a platform that is not SEV capable.
	PolicySEV
)

var policyNames = []struct {
	bit  Policy
	name string
}{
	{PolicyNoDebug, "NODBG"},
	{PolicyNoKeySharing, "NOKS"},
	{PolicyES, "ES"},
	{PolicyNoSend, "NOSEND"},
	{PolicyDomain, "DOMAIN"},
	{PolicySEV, "SEV"},
}

// ES returns whether the policy requires SEV-ES.
func (p Policy) ES() bool { return p&PolicyES != 0 }

func (p Policy) String() string {
	var names []string
	for _, n := range policyNames {
		if p&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%x", uint32(p))
	}
	return fmt.Sprintf("0x%x(%s)", uint32(p), strings.Join(names, "|"))
}
