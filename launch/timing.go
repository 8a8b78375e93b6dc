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
	"time"

	"github.com/google/logger"
)

// Timestamp is a wall-clock time paired with the process CPU time consumed so far.
type Timestamp struct {
	Wall time.Time
	CPU  time.Duration
}

// Now returns the current Timestamp.
func Now() Timestamp {
	return Timestamp{Wall: time.Now(), CPU: processCPUTime()}
}

// Since returns the wall and CPU time elapsed from t until now.
func (t Timestamp) Since() (wall, cpu time.Duration) {
	now := Now()
	return now.Wall.Sub(t.Wall), now.CPU - t.CPU
}

func (c *Context) logElapsed(what string) {
	wall, cpu := c.created.Since()
	logger.Infof("%s: %06d us, %06d CPU us", what, wall.Microseconds(), cpu.Microseconds())
}
