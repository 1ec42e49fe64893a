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

import "fmt"

// pendingInvalid and blockedTSInvalid are SCHED_CLUTCH_BUCKET_GROUP_*_INVALID
// sentinels (sched_clutch.h).
const (
	pendingInvalid   int64 = -1
	blockedTSInvalid int64 = -1
)

// SchedClutchBucketGroup is the per-thread-group, per-QoS-bucket container
// that tracks CPU usage, blocked time, and interactivity score across all
// clusters sharing that bucket (sched_clutch.h:276-298). This simulation
// models a single cluster, so each group owns exactly one SchedClutchBucket.
type SchedClutchBucketGroup struct {
	bucket int
	clutch *SchedClutch

	timeshareTick int64
	priShift      int

	cpuUsed    int64
	cpuBlocked int64

	blockedCount int
	blockedTS    int64

	pendingCount int
	pendingTS    int64

	interactivityScore int
	interactivityTS    int64

	clutchBucket *SchedClutchBucket
}

func newSchedClutchBucketGroup(c *SchedClutch, bucket int) *SchedClutchBucketGroup {
	g := &SchedClutchBucketGroup{
		bucket:             bucket,
		clutch:             c,
		priShift:           noDecayShift,
		cpuBlocked:         AdjustThresholdUs,
		blockedTS:          blockedTSInvalid,
		pendingTS:          pendingInvalid,
		interactivityScore: initialInteractivity,
	}
	g.clutchBucket = newSchedClutchBucket(g, bucket)
	return g
}

// runCountInc increments the runnable/running thread count, accounting
// blocked time if this transitions the group from all-blocked to having a
// runnable thread. Ports sched_clutch_bucket_group_run_count_inc
// (sched_clutch.c:2646-2690).
func (g *SchedClutchBucketGroup) runCountInc(timestamp int64) int {
	oldCount := g.blockedCount
	g.blockedCount++

	if oldCount == 0 {
		oldTS := g.blockedTS
		g.blockedTS = blockedTSInvalid
		if oldTS != blockedTSInvalid && timestamp > oldTS {
			blockedTime := timestamp - oldTS
			if blockedTime > AdjustThresholdUs {
				blockedTime = AdjustThresholdUs
			}
			g.cpuBlocked += blockedTime
		}
	}
	return g.blockedCount
}

// runCountDec decrements the runnable/running thread count, recording a
// blocked timestamp if every thread in the group is now blocked.
func (g *SchedClutchBucketGroup) runCountDec(timestamp int64) int {
	g.blockedCount--
	if g.blockedCount == 0 {
		g.blockedTS = timestamp
	}
	return g.blockedCount
}

// thrCountInc tracks thread insertion for pending-based interactivity
// aging.
func (g *SchedClutchBucketGroup) thrCountInc(timestamp int64) {
	g.pendingCount++
	if g.pendingTS == pendingInvalid {
		g.pendingTS = timestamp
	}
}

// thrCountDec tracks thread removal, resetting or refreshing the pending
// timestamp.
func (g *SchedClutchBucketGroup) thrCountDec(timestamp int64) {
	g.pendingCount--
	if g.pendingCount == 0 {
		g.pendingTS = pendingInvalid
	} else {
		g.pendingTS = timestamp
	}
}

// cpuUsageUpdate adds CPU usage time for this bucket group, clamped to the
// adjustment threshold. Ports sched_clutch_bucket_group_cpu_usage_update
// (sched_clutch.c:1907-1918).
func (g *SchedClutchBucketGroup) cpuUsageUpdate(delta int64) {
	if isAboveTimeshare(g.bucket) {
		return
	}
	if delta > AdjustThresholdUs {
		delta = AdjustThresholdUs
	}
	g.cpuUsed += delta
}

// cpuAdjust scales CPU usage/blocked data and ages out CPU usage. Ports
// sched_clutch_bucket_group_cpu_adjust (sched_clutch.c:1953-1978).
func (g *SchedClutchBucketGroup) cpuAdjust(pendingIntervals int64) {
	cpuUsed := g.cpuUsed
	cpuBlocked := g.cpuBlocked

	if pendingIntervals == 0 && (cpuUsed+cpuBlocked) < AdjustThresholdUs {
		return
	}

	if (cpuUsed + cpuBlocked) >= AdjustThresholdUs {
		cpuUsed /= AdjustRatio
		cpuBlocked /= AdjustRatio
	}

	cpuUsed = cpuPendingAdjust(cpuUsed, cpuBlocked, pendingIntervals)
	g.cpuUsed = cpuUsed
	g.cpuBlocked = cpuBlocked
}

// cpuPendingAdjust computes adjusted CPU usage based on pending intervals.
// Ports sched_clutch_bucket_group_cpu_pending_adjust
// (sched_clutch.c:1926-1941).
func cpuPendingAdjust(cpuUsed, cpuBlocked, pendingIntervals int64) int64 {
	if pendingIntervals == 0 {
		return cpuUsed
	}

	const interactivePri = InteractivePriDefault

	if cpuBlocked < cpuUsed {
		numerator := interactivePri * cpuBlocked * cpuUsed
		denominator := interactivePri*cpuBlocked + cpuUsed*pendingIntervals
		if denominator == 0 {
			return 0
		}
		return numerator / denominator
	}

	if interactivePri == 0 {
		return cpuUsed
	}
	adjustFactor := (cpuBlocked * pendingIntervals) / interactivePri
	if cpuUsed-adjustFactor < 0 {
		return 0
	}
	return cpuUsed - adjustFactor
}

// interactivityFromCPUData computes an interactivity score in [0, 16] from
// CPU usage data, where 8 is neutral, higher is more interactive, and lower
// is more CPU-bound. Ports sched_clutch_interactivity_from_cpu_data
// (sched_clutch.c:1688-1713).
func (g *SchedClutchBucketGroup) interactivityFromCPUData() int {
	cpuUsed := g.cpuUsed
	cpuBlocked := g.cpuBlocked
	const interactivePri = InteractivePriDefault

	if cpuBlocked == 0 && cpuUsed == 0 {
		return g.interactivityScore
	}

	if cpuBlocked > cpuUsed {
		return interactivePri + int((interactivePri*(cpuBlocked-cpuUsed))/cpuBlocked)
	}

	if cpuUsed == 0 {
		return interactivePri
	}
	return int((interactivePri * cpuBlocked) / cpuUsed)
}

// interactivityScoreCalculate ages out pending intervals, adjusts CPU
// stats, recalculates the interactivity score, and writes it back if the
// timestamp has advanced. Ports
// sched_clutch_bucket_group_interactivity_score_calculate
// (sched_clutch.c:2592-2632, non-Edge variant).
func (g *SchedClutchBucketGroup) interactivityScoreCalculate(timestamp int64, globalBucketLoad int64) int {
	if isAboveTimeshare(g.bucket) {
		return g.interactivityScore
	}

	pendingIntervals := g.pendingAgeout(timestamp, globalBucketLoad)
	g.cpuAdjust(pendingIntervals)
	score := g.interactivityFromCPUData()

	if timestamp > g.interactivityTS {
		g.interactivityScore = score
		g.interactivityTS = timestamp
	}
	return g.interactivityScore
}

// pendingAgeout computes the number of pending-ageout intervals elapsed
// since the last pending timestamp. Ports
// sched_clutch_bucket_group_pending_ageout (sched_clutch.c:2561-2588).
func (g *SchedClutchBucketGroup) pendingAgeout(timestamp int64, globalBucketLoad int64) int64 {
	oldPendingTS := g.pendingTS
	if oldPendingTS >= timestamp || oldPendingTS == pendingInvalid || globalBucketLoad == 0 {
		return 0
	}

	pendingDelta := timestamp - oldPendingTS
	interactivityDelta := pendingDeltaUs[g.bucket] + globalBucketLoad*threadQuantumUs[g.bucket]
	if interactivityDelta == 0 || pendingDelta < interactivityDelta {
		return 0
	}

	cpuUsageShift := pendingDelta / interactivityDelta
	g.pendingTS = oldPendingTS + cpuUsageShift*interactivityDelta
	return cpuUsageShift
}

// priShiftUpdate recomputes the bucket group's timeshare decay shift for
// the current tick. Ports sched_clutch_bucket_group_pri_shift_update
// (sched_clutch.c:2057-2083).
func (g *SchedClutchBucketGroup) priShiftUpdate(currentTick int64, processorCount int) {
	if isAboveTimeshare(g.bucket) {
		return
	}
	if g.timeshareTick >= currentTick {
		return
	}
	g.timeshareTick = currentTick

	runCount := g.blockedCount - 1
	if runCount < 0 {
		runCount = 0
	}
	var load int
	if processorCount > 0 {
		load = runCount / processorCount
	} else {
		load = runCount
	}
	if load > NRQS-1 {
		load = NRQS - 1
	}

	priShift := SchedFixedShift - int(schedLoadShifts[load])
	if priShift > SchedPriShiftMax {
		priShift = noDecayShift
	}
	g.priShift = priShift
}

// SchedClutchBucket is the per-thread-group, per-QoS, per-cluster bucket
// holding a thread runqueue. Ports sched_clutch_bucket
// (sched_clutch.h:220-252).
type SchedClutchBucket struct {
	bucket   int
	priority int
	thrCount int
	group    *SchedClutchBucketGroup
	root     *ClutchRoot

	threadRunq       *StablePriorityQueue[*Thread]
	clutchpriPrioq   *PriorityQueueMax[*Thread]
	timeshareThreads map[*Thread]struct{}
}

func newSchedClutchBucket(group *SchedClutchBucketGroup, bucket int) *SchedClutchBucket {
	cb := &SchedClutchBucket{
		bucket:           bucket,
		group:            group,
		timeshareThreads: make(map[*Thread]struct{}),
	}
	cb.threadRunq = NewStablePriorityQueue[*Thread](func(t *Thread) int { return t.SchedPri })
	cb.clutchpriPrioq = NewPriorityQueueMax[*Thread](func(t *Thread) int {
		if t.schedPriPromoted() {
			return t.SchedPri
		}
		return t.BasePri
	})
	return cb
}

// schedPriPromoted reports whether a thread's priority is currently
// boosted. Priority promotion is out of scope for this scheduler core;
// threads never carry a promoted priority, so the clutchpri key always
// falls back to base_pri.
func (t *Thread) schedPriPromoted() bool { return false }

// basePri returns the highest base/promoted priority among the bucket's
// threads, or 0 if empty. Ports sched_clutch_bucket_base_pri
// (sched_clutch.c:1665-1681).
func (cb *SchedClutchBucket) basePri() int {
	if cb.clutchpriPrioq.Empty() {
		return 0
	}
	return cb.clutchpriPrioq.MaxPriority()
}

// priCalculate returns the clutch bucket's scheduling priority: base
// priority plus the bucket group's interactivity score, clamped to 255.
// Ports sched_clutch_bucket_pri_calculate (sched_clutch.c:1723-1743).
func (cb *SchedClutchBucket) priCalculate(timestamp int64, globalBucketLoad int64) int {
	if cb.thrCount == 0 {
		return 0
	}
	base := cb.basePri()
	interactive := cb.group.interactivityScoreCalculate(timestamp, globalBucketLoad)
	pri := base + interactive
	if pri > 255 {
		pri = 255
	}
	return pri
}

func (cb *SchedClutchBucket) String() string {
	return fmt.Sprintf("CB(%s/%s, pri=%d, threads=%d)",
		cb.group.clutch.tg.Name, BucketNames[cb.bucket], cb.priority, cb.thrCount)
}

// SchedClutch is the per-thread-group top-level container for the bucket
// hierarchy. Ports sched_clutch (sched_clutch.h:308-324).
type SchedClutch struct {
	tg           *ThreadGroup
	thrCount     int
	clutchGroups [SchedBucketMax]*SchedClutchBucketGroup
}

func newSchedClutch(tg *ThreadGroup) *SchedClutch {
	c := &SchedClutch{tg: tg}
	for bucket := 0; bucket < SchedBucketMax; bucket++ {
		c.clutchGroups[bucket] = newSchedClutchBucketGroup(c, bucket)
	}
	return c
}

// bucketForThread returns the clutch bucket owning thread's QoS bucket.
// Ports sched_clutch_bucket_for_thread (sched_clutch.c:2692-2705).
func (c *SchedClutch) bucketForThread(t *Thread) *SchedClutchBucket {
	return c.clutchGroups[t.SchedBucket].clutchBucket
}

// bucketGroupForThread returns the bucket group owning thread's QoS
// bucket.
func (c *SchedClutch) bucketGroupForThread(t *Thread) *SchedClutchBucketGroup {
	return c.clutchGroups[t.SchedBucket]
}

func (c *SchedClutch) String() string {
	return fmt.Sprintf("SchedClutch(%s, threads=%d)", c.tg.Name, c.thrCount)
}
