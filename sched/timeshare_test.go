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

func TestComputeSchedPriNoDecayEqualsBasePri(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	cbg := tg.clutch.clutchGroups[th.SchedBucket]

	if got := computeSchedPri(th, cbg); got != th.BasePri {
		t.Errorf("computeSchedPri() with no decay = %d, want BasePri %d", got, th.BasePri)
	}
}

func TestComputeSchedPriDecaysBelowBasePriUnderUsage(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	cbg := tg.clutch.clutchGroups[th.SchedBucket]

	th.PriShift = 2
	th.SchedUsage = 1000

	got := computeSchedPri(th, cbg)
	if got >= th.BasePri {
		t.Errorf("computeSchedPri() = %d, want < BasePri %d under accumulated usage", got, th.BasePri)
	}
	if got < MinPri {
		t.Errorf("computeSchedPri() = %d, want >= MinPri %d", got, MinPri)
	}
}

func TestComputeSchedPriAboveTimeshareIgnoresDecay(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	th := NewThread(1, tg, NewThreadParams{Mode: ModeFixed, BasePri: BasePriControl})
	cbg := tg.clutch.clutchGroups[th.SchedBucket]
	th.PriShift = 2
	th.SchedUsage = 1_000_000

	if got := computeSchedPri(th, cbg); got != th.BasePri {
		t.Errorf("computeSchedPri() for an Above UI thread = %d, want BasePri %d (decay bypassed)", got, th.BasePri)
	}
}

func TestComputeSchedPriBoundThreadBypassesDecay(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	cbg := tg.clutch.clutchGroups[th.SchedBucket]
	th.BoundProcessor = 0
	th.PriShift = 2
	th.SchedUsage = 1_000_000

	if got := computeSchedPri(th, cbg); got != th.BasePri {
		t.Errorf("computeSchedPri() for a bound thread = %d, want BasePri %d", got, th.BasePri)
	}
}

func TestUpdateThreadCPUUsageChargesSchedUsageOnlyUnderDecay(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	cbg := tg.clutch.clutchGroups[th.SchedBucket]

	th.PriShift = noDecayShift
	updateThreadCPUUsage(th, 100, cbg)
	if th.SchedUsage != 0 {
		t.Errorf("SchedUsage = %d after update with noDecayShift, want 0", th.SchedUsage)
	}
	if th.CPUUsage != 100 {
		t.Errorf("CPUUsage = %d, want 100", th.CPUUsage)
	}

	th.PriShift = 5
	updateThreadCPUUsage(th, 100, cbg)
	if th.SchedUsage != 100 {
		t.Errorf("SchedUsage = %d after update under decay, want 100", th.SchedUsage)
	}
}

func TestUpdateThreadCPUUsageBoundThreadSkipsBucketGroupAccounting(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	cbg := tg.clutch.clutchGroups[th.SchedBucket]
	th.BoundProcessor = 0

	updateThreadCPUUsage(th, 1000, cbg)
	if cbg.cpuUsed != 0 {
		t.Errorf("cbg.cpuUsed = %d after a bound thread ran, want 0 (bound threads bypass bucket-group accounting)", cbg.cpuUsed)
	}
}

func TestPriShiftForLoadHigherLoadLowersShift(t *testing.T) {
	light := priShiftForLoad(1, 4)
	heavy := priShiftForLoad(64, 4)

	if heavy > light {
		t.Errorf("priShiftForLoad(heavy) = %d, priShiftForLoad(light) = %d; want heavier load to have a lower (or equal) shift", heavy, light)
	}
}

func TestPriShiftForLoadZeroProcessorsIsNoDecay(t *testing.T) {
	if got := priShiftForLoad(10, 0); got != noDecayShift {
		t.Errorf("priShiftForLoad with 0 processors = %d, want noDecayShift %d", got, noDecayShift)
	}
}
