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

// computeSchedPri computes the effective scheduling priority for a
// timeshare thread: sched_pri = base_pri - (sched_usage >> pri_shift).
// pri_shift runs higher (slower decay) under low load and lower (faster
// decay) under contention, so CPU-bound threads in the same QoS bucket
// share fairly. Ports the Mach timeshare decay used by
// compute_sched_pri-equivalent logic in sched_average.c:250-300.
func computeSchedPri(t *Thread, cbg *SchedClutchBucketGroup) int {
	if isAboveTimeshare(cbg.bucket) {
		return t.BasePri
	}

	// Hard-bound threads bypass Clutch pri_shift entirely.
	if t.BoundProcessor >= 0 {
		return t.BasePri
	}

	if t.PriShift >= noDecayShift {
		return t.BasePri
	}

	decay := t.SchedUsage >> uint(t.PriShift)
	pri := int64(t.BasePri) - decay
	if pri < MinPri {
		pri = MinPri
	}
	if pri > int64(t.MaxPriority) {
		pri = int64(t.MaxPriority)
	}
	return int(pri)
}

// updateThreadCPUUsage charges a thread's CPU usage counters after it
// runs for deltaUs, only charging sched_usage (the decay-relevant counter)
// when the previous window was contended. Hard-bound threads are not
// Clutch-eligible and must not perturb bucket-group accounting.
func updateThreadCPUUsage(t *Thread, deltaUs int64, cbg *SchedClutchBucketGroup) {
	t.CPUUsage += deltaUs
	if t.PriShift < noDecayShift {
		t.SchedUsage += deltaUs
	}
	t.CPUDelta += deltaUs

	if t.BoundProcessor < 0 {
		cbg.cpuUsageUpdate(deltaUs)
	}
}

// ageThreadCPUUsage decays a thread's accumulated CPU usage using the
// fixed-point (5/8)^ticks approximation, called once per scheduler tick so
// threads regain priority after being penalized for CPU usage. Mirrors
// XNU's update_priority().
func ageThreadCPUUsage(t *Thread, decayFactor int) {
	ticks := decayFactor
	if ticks < 0 {
		ticks = 0
	}
	if ticks >= SchedDecayTicks {
		t.CPUUsage = 0
		t.SchedUsage = 0
		t.CPUDelta = 0
		return
	}

	ds := schedDecayShifts[ticks]
	if ds.shift2 > 0 {
		t.CPUUsage = (t.CPUUsage >> uint(ds.shift1)) + (t.CPUUsage >> uint(ds.shift2))
		t.SchedUsage = (t.SchedUsage >> uint(ds.shift1)) + (t.SchedUsage >> uint(ds.shift2))
	} else {
		t.CPUUsage = (t.CPUUsage >> uint(ds.shift1)) - (t.CPUUsage >> uint(-ds.shift2))
		t.SchedUsage = (t.SchedUsage >> uint(ds.shift1)) - (t.SchedUsage >> uint(-ds.shift2))
	}
	t.CPUDelta = 0
}

// priShiftForLoad computes the priority shift implied by runCount threads
// spread across processorCount processors. Higher load yields a lower
// pri_shift and thus faster priority decay. Ports the load-to-shift
// calculation within sched_clutch_bucket_group_pri_shift_update().
func priShiftForLoad(runCount, processorCount int) int {
	if processorCount == 0 {
		return noDecayShift
	}

	effectiveRunCount := runCount - 1
	if effectiveRunCount < 0 {
		effectiveRunCount = 0
	}
	load := effectiveRunCount / processorCount
	if load > NRQS-1 {
		load = NRQS - 1
	}

	priShift := SchedFixedShift - int(schedLoadShifts[load])
	if priShift > SchedPriShiftMax {
		return noDecayShift
	}
	return priShift
}
