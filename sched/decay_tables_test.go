//
// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//

package sched

import "testing"

func TestLoadShiftInitSentinels(t *testing.T) {
	shifts := loadShiftInit(NRQS, 1)
	if got := shifts[0]; got != -128 {
		t.Errorf("loadShiftInit()[0] = %d, want -128 (INT8_MIN)", got)
	}
	if got := shifts[1]; got != 0 {
		t.Errorf("loadShiftInit()[1] = %d, want 0", got)
	}
}

func TestLoadShiftInitNondecreasing(t *testing.T) {
	shifts := loadShiftInit(NRQS, 1)
	for i := 2; i < len(shifts); i++ {
		if shifts[i] < shifts[i-1] {
			t.Errorf("loadShiftInit()[%d] = %d < loadShiftInit()[%d] = %d, want nondecreasing", i, shifts[i], i-1, shifts[i-1])
		}
	}
}

func TestSchedDecayShiftsLength(t *testing.T) {
	if len(schedDecayShifts) != SchedDecayTicks {
		t.Fatalf("len(schedDecayShifts) = %d, want %d", len(schedDecayShifts), SchedDecayTicks)
	}
}

func TestAgeThreadCPUUsageDecaysTowardZero(t *testing.T) {
	tg := NewThreadGroup(0, "decay-tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	th.CPUUsage = 1_000_000
	th.SchedUsage = 1_000_000

	prev := th.CPUUsage
	for i := 1; i <= 5; i++ {
		ageThreadCPUUsage(th, 1)
		if th.CPUUsage > prev {
			t.Fatalf("CPUUsage increased after aging tick %d: %d > %d", i, th.CPUUsage, prev)
		}
		prev = th.CPUUsage
	}
	if th.CPUDelta != 0 {
		t.Errorf("CPUDelta = %d after aging, want 0", th.CPUDelta)
	}
}

func TestAgeThreadCPUUsageFullyDecaysAtMaxTicks(t *testing.T) {
	tg := NewThreadGroup(0, "decay-tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	th.CPUUsage = 500
	th.SchedUsage = 500
	th.CPUDelta = 500

	ageThreadCPUUsage(th, SchedDecayTicks)

	if th.CPUUsage != 0 || th.SchedUsage != 0 || th.CPUDelta != 0 {
		t.Errorf("ageThreadCPUUsage(SchedDecayTicks) left nonzero usage: cpu=%d sched=%d delta=%d", th.CPUUsage, th.SchedUsage, th.CPUDelta)
	}
}
