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

func TestRunCountIncChargesBlockedTimeOnFirstRunnable(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]
	cbg.blockedTS = 1000

	cbg.runCountInc(5000)

	if cbg.blockedTS != blockedTSInvalid {
		t.Errorf("blockedTS = %d after runCountInc, want blockedTSInvalid", cbg.blockedTS)
	}
	if cbg.blockedCount != 1 {
		t.Errorf("blockedCount = %d, want 1", cbg.blockedCount)
	}
	if want := int64(AdjustThresholdUs + 4000); cbg.cpuBlocked != want {
		t.Errorf("cpuBlocked = %d, want %d (initial value plus 4000us blocked)", cbg.cpuBlocked, want)
	}
}

func TestRunCountDecRecordsBlockedTimestampWhenGroupEmpties(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]
	cbg.runCountInc(0)

	cbg.runCountDec(1234)

	if cbg.blockedCount != 0 {
		t.Errorf("blockedCount = %d, want 0", cbg.blockedCount)
	}
	if cbg.blockedTS != 1234 {
		t.Errorf("blockedTS = %d, want 1234", cbg.blockedTS)
	}
}

func TestInteractivityFromCPUDataNeutralWhenNoData(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]

	got := cbg.interactivityFromCPUData()
	if got != cbg.interactivityScore {
		t.Errorf("interactivityFromCPUData() with no CPU data = %d, want unchanged score %d", got, cbg.interactivityScore)
	}
}

func TestInteractivityFromCPUDataMoreBlockedIsMoreInteractive(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]
	cbg.cpuUsed = 100
	cbg.cpuBlocked = 900

	got := cbg.interactivityFromCPUData()
	if got <= InteractivePriDefault {
		t.Errorf("interactivityFromCPUData() for a mostly-blocked thread = %d, want > %d (interactive)", got, InteractivePriDefault)
	}
}

func TestInteractivityFromCPUDataMoreUsedIsLessInteractive(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]
	cbg.cpuUsed = 900
	cbg.cpuBlocked = 100

	got := cbg.interactivityFromCPUData()
	if got >= InteractivePriDefault {
		t.Errorf("interactivityFromCPUData() for a CPU-bound thread = %d, want < %d (CPU-bound)", got, InteractivePriDefault)
	}
}

func TestPriCalculateZeroWhenEmpty(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]
	cb := cbg.clutchBucket

	if got := cb.priCalculate(0, 0); got != 0 {
		t.Errorf("priCalculate() with no threads = %d, want 0", got)
	}
}

func TestPriCalculateCombinesBaseAndInteractivity(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]
	cb := cbg.clutchBucket
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriDefault})
	cb.thrCount = 1
	cb.clutchpriPrioq.Insert(th)

	got := cb.priCalculate(0, 0)
	want := th.BasePri + cbg.interactivityScore
	if want > 255 {
		want = 255
	}
	if got != want {
		t.Errorf("priCalculate() = %d, want %d", got, want)
	}
}

func TestPriShiftUpdateSkipsAboveTimeshare(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketFixpri]
	cbg.priShiftUpdate(1, 2)

	if cbg.timeshareTick != 0 {
		t.Errorf("timeshareTick = %d after priShiftUpdate on Above UI bucket, want 0 (unmodified)", cbg.timeshareTick)
	}
}

func TestPriShiftUpdateIgnoresStaleTick(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	cbg := tg.clutch.clutchGroups[BucketDF]
	cbg.priShiftUpdate(5, 2)
	shiftAfterFirst := cbg.priShift

	cbg.priShiftUpdate(5, 2) // same tick again, should be a no-op
	if cbg.priShift != shiftAfterFirst {
		t.Errorf("priShift changed on a repeated call for the same tick: %d -> %d", shiftAfterFirst, cbg.priShift)
	}
}

func TestBucketForThreadAndBucketGroupForThread(t *testing.T) {
	tg := NewThreadGroup(0, "tg")
	th := NewThread(1, tg, NewThreadParams{BasePri: BasePriForeground})

	cb := tg.clutch.bucketForThread(th)
	cbg := tg.clutch.bucketGroupForThread(th)

	if cb != cbg.clutchBucket {
		t.Errorf("bucketForThread() and bucketGroupForThread().clutchBucket disagree")
	}
	if cbg.bucket != th.SchedBucket {
		t.Errorf("bucketGroupForThread().bucket = %d, want %d", cbg.bucket, th.SchedBucket)
	}
}
