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

// priGreaterTiebreak reports whether priOne outranks priTwo, with
// oneWinsTies controlling whether equal priorities favor priOne. Ports
// sched_clutch_pri_greater_than_tiebreak (sched_clutch.c:3318-3325).
func priGreaterTiebreak(priOne, priTwo int, oneWinsTies bool) bool {
	if oneWinsTies {
		return priOne >= priTwo
	}
	return priOne > priTwo
}

// bitmapLSBFirst returns the lowest set bit (highest-priority bucket) of
// bitmap, or -1 if bitmap is zero.
func bitmapLSBFirst(bitmap uint32) int {
	if bitmap == 0 {
		return -1
	}
	n := 0
	for bitmap&1 == 0 {
		bitmap >>= 1
		n++
	}
	return n
}

func bitmapSet(bitmap uint32, bit int) uint32   { return bitmap | (1 << uint(bit)) }
func bitmapClear(bitmap uint32, bit int) uint32 { return bitmap &^ (1 << uint(bit)) }
func bitmapTest(bitmap uint32, bit int) bool    { return bitmap&(1<<uint(bit)) != 0 }

// ClutchRoot is the root of the Clutch hierarchy for a single cluster. It
// manages root buckets and implements the three-phase selection: an Above
// UI check, EDF among timeshare root buckets, and warp/starvation
// avoidance. Ports sched_clutch_root (sched_clutch.h:129-181) and the
// selection algorithm in sched_clutch.c:838-1037.
type ClutchRoot struct {
	clusterID int
	priority  int
	thrCount  int
	urgency   int

	unboundBuckets       [SchedBucketMax]*ClutchRootBucket
	unboundRootPrioq     *PriorityQueueDeadlineMin[*ClutchRootBucket]
	unboundRunnableBitmap uint32
	unboundWarpAvailable  uint32

	boundBuckets       [SchedBucketMax]*ClutchRootBucket
	boundRootPrioq     *PriorityQueueDeadlineMin[*ClutchRootBucket]
	boundRunnableBitmap uint32
	boundWarpAvailable  uint32

	globalBucketLoad [SchedBucketMax]int

	clutchBucketsList []*SchedClutchBucket
}

// newClutchRoot constructs an empty root hierarchy for one cluster.
func newClutchRoot(clusterID int) *ClutchRoot {
	r := &ClutchRoot{clusterID: clusterID, priority: NoPri}
	for b := 0; b < SchedBucketMax; b++ {
		r.unboundBuckets[b] = newClutchRootBucket(b, false)
		r.boundBuckets[b] = newClutchRootBucket(b, true)
	}
	r.unboundRootPrioq = NewPriorityQueueDeadlineMin[*ClutchRootBucket](func(rb *ClutchRootBucket) uint64 { return rb.deadline })
	r.boundRootPrioq = NewPriorityQueueDeadlineMin[*ClutchRootBucket](func(rb *ClutchRootBucket) uint64 { return rb.deadline })
	return r
}

// rootBucketRunnable inserts a newly runnable root bucket into the
// hierarchy. Ports sched_clutch_root_bucket_runnable
// (sched_clutch.c:1103-1133).
func (r *ClutchRoot) rootBucketRunnable(rb *ClutchRootBucket, timestamp uint64) {
	if rb.bound {
		r.boundRunnableBitmap = bitmapSet(r.boundRunnableBitmap, rb.bucket)
	} else {
		r.unboundRunnableBitmap = bitmapSet(r.unboundRunnableBitmap, rb.bucket)
	}

	if isAboveTimeshare(rb.bucket) {
		return
	}

	if !rb.starvationAvoidance {
		rb.deadline = rb.deadlineCalculate(timestamp)
	}

	prioq := r.unboundRootPrioq
	if rb.bound {
		prioq = r.boundRootPrioq
	}
	prioq.Insert(rb)

	if rb.warpRemaining > 0 {
		if rb.bound {
			r.boundWarpAvailable = bitmapSet(r.boundWarpAvailable, rb.bucket)
		} else {
			r.unboundWarpAvailable = bitmapSet(r.unboundWarpAvailable, rb.bucket)
		}
	}
}

// rootBucketEmpty removes an empty root bucket from the hierarchy. Ports
// sched_clutch_root_bucket_empty (sched_clutch.c:1141-1179).
func (r *ClutchRoot) rootBucketEmpty(rb *ClutchRootBucket, timestamp uint64) {
	if rb.bound {
		r.boundRunnableBitmap = bitmapClear(r.boundRunnableBitmap, rb.bucket)
	} else {
		r.unboundRunnableBitmap = bitmapClear(r.unboundRunnableBitmap, rb.bucket)
	}

	if isAboveTimeshare(rb.bucket) {
		return
	}

	prioq := r.unboundRootPrioq
	if rb.bound {
		prioq = r.boundRootPrioq
	}
	prioq.Remove(rb)

	if rb.bound {
		r.boundWarpAvailable = bitmapClear(r.boundWarpAvailable, rb.bucket)
	} else {
		r.unboundWarpAvailable = bitmapClear(r.unboundWarpAvailable, rb.bucket)
	}

	rb.onEmpty(timestamp)
}

// clutchBucketHierarchyInsert inserts clutchBucket into its root bucket's
// runqueue. Ports sched_clutch_bucket_hierarchy_insert.
func (r *ClutchRoot) clutchBucketHierarchyInsert(cb *SchedClutchBucket, bucket int, timestamp uint64, options clutchBucketOptions) {
	rb := r.unboundBuckets[bucket]
	wasEmpty := rb.clutchBuckets.Empty()

	head := options&cbOptHeadQ != 0
	rb.clutchBuckets.Enqueue(cb, cb.priority, head)
	cb.root = r

	r.clutchBucketsList = append(r.clutchBucketsList, cb)
	r.globalBucketLoad[bucket]++

	if wasEmpty {
		r.rootBucketRunnable(rb, timestamp)
	}
}

// clutchBucketHierarchyRemove removes clutchBucket from its root bucket's
// runqueue.
func (r *ClutchRoot) clutchBucketHierarchyRemove(cb *SchedClutchBucket, bucket int, timestamp uint64, options clutchBucketOptions) {
	rb := r.unboundBuckets[bucket]

	rb.clutchBuckets.Dequeue(cb, cb.priority)
	cb.root = nil

	for i, v := range r.clutchBucketsList {
		if v == cb {
			r.clutchBucketsList = append(r.clutchBucketsList[:i], r.clutchBucketsList[i+1:]...)
			break
		}
	}
	r.globalBucketLoad[bucket]--

	if rb.clutchBuckets.Empty() {
		r.rootBucketEmpty(rb, timestamp)
	}
}

// clutchBucketRunnable handles a clutch bucket becoming runnable (first
// thread added). Returns true if root priority increased. Ports
// sched_clutch_bucket_runnable (sched_clutch.c:1789-1807).
func (r *ClutchRoot) clutchBucketRunnable(cb *SchedClutchBucket, timestamp uint64, options clutchBucketOptions) bool {
	cb.priority = cb.priCalculate(int64(timestamp), int64(r.globalBucketLoad[cb.bucket]))
	r.clutchBucketHierarchyInsert(cb, cb.bucket, timestamp, options)
	cb.group.priShiftUpdate(0, 1)

	oldPri := r.priority
	r.rootPriUpdate()
	return r.priority > oldPri
}

// clutchBucketUpdate updates a clutch bucket's position in its root bucket
// after a thread was added or removed without the bucket becoming empty.
// Returns true if root priority increased. Ports sched_clutch_bucket_update
// (sched_clutch.c:1817-1856).
func (r *ClutchRoot) clutchBucketUpdate(cb *SchedClutchBucket, timestamp uint64, options clutchBucketOptions) bool {
	newPri := cb.priCalculate(int64(timestamp), int64(r.globalBucketLoad[cb.bucket]))
	rb := r.unboundBuckets[cb.bucket]
	bucketRunq := rb.clutchBuckets

	if newPri == cb.priority {
		if options&cbOptSamePriRR != 0 {
			bucketRunq.RotateAt(cb.priority)
		}
		return false
	}

	bucketRunq.Dequeue(cb, cb.priority)
	cb.priority = newPri
	head := options&cbOptHeadQ != 0
	bucketRunq.Enqueue(cb, newPri, head)

	oldPri := r.priority
	r.rootPriUpdate()
	return r.priority > oldPri
}

// clutchBucketEmpty handles a clutch bucket becoming empty (last thread
// removed). Ports sched_clutch_bucket_empty (sched_clutch.c:1865-1881).
func (r *ClutchRoot) clutchBucketEmpty(cb *SchedClutchBucket, timestamp uint64, options clutchBucketOptions) {
	r.clutchBucketHierarchyRemove(cb, cb.bucket, timestamp, options)
	cb.group.priShiftUpdate(0, 1)
	cb.priority = 0
	r.rootPriUpdate()
}

// rootPriUpdate recomputes the root's scheduling priority from the highest
// runnable thread priority within the selected root bucket. Root priority
// is derived from the clutch bucket's raw clutchpri queue, not its
// interactivity-adjusted scb_priority. Ports sched_clutch_root_pri_update
// for the unbound Clutch hierarchy.
func (r *ClutchRoot) rootPriUpdate() {
	rootUnboundPri := NoPri
	var highest *ClutchRootBucket
	highestPri := -1
	highestIsFixpri := false

	if bitmapTest(r.unboundRunnableBitmap, BucketFixpri) {
		fixpriRB := r.unboundBuckets[BucketFixpri]
		if !fixpriRB.clutchBuckets.Empty() {
			cb, _ := fixpriRB.clutchBuckets.PeekHighest()
			highest = fixpriRB
			highestPri = cb.priority
			highestIsFixpri = true
		}
	}

	if bitmapTest(r.unboundRunnableBitmap, BucketFG) {
		fgRB := r.unboundBuckets[BucketFG]
		if !fgRB.clutchBuckets.Empty() {
			fgCB, _ := fgRB.clutchBuckets.PeekHighest()
			if highest == nil || fgCB.priority > highestPri {
				highest = fgRB
				highestPri = fgCB.priority
				highestIsFixpri = false
			}
		}
	}

	if highest != nil && !highestIsFixpri {
		highest = nil
		for b := BucketFG; b < SchedBucketMax; b++ {
			if bitmapTest(r.unboundRunnableBitmap, b) {
				rb := r.unboundBuckets[b]
				if !rb.clutchBuckets.Empty() {
					highest = rb
					break
				}
			}
		}
	}

	if highest == nil {
		for b := 0; b < SchedBucketMax; b++ {
			if bitmapTest(r.unboundRunnableBitmap, b) {
				rb := r.unboundBuckets[b]
				if !rb.clutchBuckets.Empty() {
					highest = rb
					break
				}
			}
		}
	}

	if highest != nil {
		cb, _ := r.rootBucketHighestClutchBucket(highest, nil, true)
		if cb != nil && !cb.clutchpriPrioq.Empty() {
			rootUnboundPri = cb.clutchpriPrioq.MaxPriority()
		}
	}

	r.priority = rootUnboundPri
}

// highestRootBucket selects the highest-priority root bucket using EDF
// with warp and starvation avoidance. This is the heart of the Clutch
// scheduler's root-level policy. Ports
// sched_clutch_root_highest_root_bucket (sched_clutch.c:838-1037).
//
// When prevThread is non-nil, its root bucket (prevBucket) is considered as
// a candidate even though the thread hasn't been re-enqueued yet, matching
// the select-then-dispatch flow. Returns (bucket, chosePrev) where
// chosePrev=true means prevThread's bucket was selected and the caller
// should keep running it.
func (r *ClutchRoot) highestRootBucket(timestamp uint64, prevBucket *ClutchRootBucket, prevThread *Thread) (*ClutchRootBucket, bool) {
	highestRunnable := r.highestRunnableQoS()
	hasPrev := prevBucket != nil && prevThread != nil

	if highestRunnable == -1 && !hasPrev {
		return nil, false
	}
	if highestRunnable == -1 && hasPrev {
		return prevBucket, true
	}

	fixpriRunnable := bitmapTest(r.unboundRunnableBitmap, BucketFixpri)
	prevIsFixpri := hasPrev && prevBucket.bucket == BucketFixpri

	if fixpriRunnable || prevIsFixpri {
		if rb, chosePrev, ok := r.selectAboveUI(prevBucket, prevThread, hasPrev); ok {
			return rb, chosePrev
		}
	}

	return r.evaluateRootBuckets(timestamp, prevBucket, prevThread)
}

// selectAboveUI determines whether the fixed-priority Above UI bucket
// should bypass EDF by comparing it against the Foreground bucket and
// prevThread's interactivity-adjusted priority. Returns ok=false if EDF
// should decide instead. Ports sched_clutch_root_unbound_select_aboveui
// (sched_clutch.c:641-697) plus the chose_prev logic from
// sched_clutch_root_highest_aboveui_root_bucket (sched_clutch.c:817-825).
func (r *ClutchRoot) selectAboveUI(prevBucket *ClutchRootBucket, prevThread *Thread, hasPrev bool) (*ClutchRootBucket, bool, bool) {
	var higherRootBucket *ClutchRootBucket
	var higherClutchBucket *SchedClutchBucket
	higherIsAboveUI := false

	if bitmapTest(r.unboundRunnableBitmap, BucketFixpri) {
		fixpriRB := r.unboundBuckets[BucketFixpri]
		if !fixpriRB.clutchBuckets.Empty() {
			cb, _ := fixpriRB.clutchBuckets.PeekHighest()
			higherRootBucket = fixpriRB
			higherClutchBucket = cb
			higherIsAboveUI = true
		}
	}

	if bitmapTest(r.unboundRunnableBitmap, BucketFG) {
		fgRB := r.unboundBuckets[BucketFG]
		if !fgRB.clutchBuckets.Empty() {
			fgCB, _ := fgRB.clutchBuckets.PeekHighest()
			if higherRootBucket == nil || fgCB.priority > higherClutchBucket.priority {
				higherRootBucket = fgRB
				higherClutchBucket = fgCB
				higherIsAboveUI = false
			}
		}
	}

	if hasPrev && prevThread.ThreadGroup.clutch != nil {
		prevCBG := prevThread.ThreadGroup.clutch.clutchGroups[prevThread.SchedBucket]
		prevClutchBucketPri := prevThread.SchedPri + prevCBG.interactivityScore
		prevShouldWinTies := prevBucket.bucket == BucketFixpri && !higherIsAboveUI
		if higherClutchBucket == nil || priGreaterTiebreak(prevClutchBucketPri, higherClutchBucket.priority, prevShouldWinTies) {
			higherRootBucket = prevBucket
			higherIsAboveUI = prevBucket.bucket == BucketFixpri
		}
	}

	if higherRootBucket == nil || !higherIsAboveUI {
		return nil, false, false
	}

	chosePrev := false
	if hasPrev && !bitmapTest(r.unboundRunnableBitmap, higherRootBucket.bucket) {
		chosePrev = true
	}
	return higherRootBucket, chosePrev, true
}

// evaluateRootBuckets performs EDF evaluation with starvation avoidance and
// warp. Ports the evaluate_root_buckets: label loop in
// sched_clutch.c:886-1037. When prevBucket is non-nil it competes in EDF
// even though it isn't enqueued in the priority queue.
func (r *ClutchRoot) evaluateRootBuckets(timestamp uint64, prevBucket *ClutchRootBucket, prevThread *Thread) (*ClutchRootBucket, bool) {
	hasPrev := prevBucket != nil && prevThread != nil
	prevInEDF := hasPrev && !isAboveTimeshare(prevBucket.bucket)

	for {
		edfBucket, ok := r.unboundRootPrioq.PeekMin()
		edfBucketEnqueuedNormally := true

		if !ok {
			if prevInEDF {
				return prevBucket, true
			}
			return nil, false
		}

		if prevInEDF && prevBucket != edfBucket {
			if prevBucket.deadline < edfBucket.deadline {
				edfBucket = prevBucket
				edfBucketEnqueuedNormally = false
			}
		}

		if edfBucket.starvationAvoidance {
			starvationWindow := uint64(threadQuantumUs[edfBucket.bucket])
			if timestamp >= edfBucket.starvationTS+starvationWindow {
				edfBucket.starvationAvoidance = false
				edfBucket.starvationTS = 0
				edfBucket.deadlineUpdate(timestamp)
				if edfBucketEnqueuedNormally {
					r.unboundRootPrioq.UpdateDeadline(edfBucket)
				}
				continue
			}
		}

		warpBitmap := r.unboundWarpAvailable
		warpBucketIndex := bitmapLSBFirst(warpBitmap)

		prevBucketWarping := prevInEDF &&
			prevBucket != edfBucket &&
			prevBucket.warpRemaining > 0 &&
			prevBucket.bucket < edfBucket.bucket &&
			(warpBucketIndex == -1 || prevBucket.bucket < warpBucketIndex)

		nonEDFCanWarp := (warpBucketIndex != -1 && warpBucketIndex < edfBucket.bucket) || prevBucketWarping

		if !nonEDFCanWarp {
			r.handleEDFSelection(edfBucket, timestamp, prevBucket, edfBucketEnqueuedNormally)
			return edfBucket, !edfBucketEnqueuedNormally
		}

		var warpBucket *ClutchRootBucket
		if prevBucketWarping {
			warpBucket = prevBucket
		} else {
			warpBucket = r.unboundBuckets[warpBucketIndex]
		}

		if warpBucket.warpedDeadline == warpUnused {
			warpBucket.warpedDeadline = timestamp + warpBucket.warpRemaining
			warpBucket.deadlineUpdate(timestamp)
			if !prevBucketWarping {
				r.unboundRootPrioq.UpdateDeadline(warpBucket)
			}
			return warpBucket, prevBucketWarping
		}

		if warpBucket.warpedDeadline > timestamp {
			warpBucket.deadlineUpdate(timestamp)
			if !prevBucketWarping {
				r.unboundRootPrioq.UpdateDeadline(warpBucket)
			}
			return warpBucket, prevBucketWarping
		}

		warpBucket.warpRemaining = 0
		if !prevBucketWarping {
			r.unboundWarpAvailable = bitmapClear(r.unboundWarpAvailable, warpBucket.bucket)
		}
	}
}

// handleEDFSelection handles EDF bucket selection: starvation avoidance
// entry and deadline/warp reset for the natural-order case. When
// edfBucketEnqueuedNormally is false (edfBucket IS prevBucket), priority
// queue updates and warp bitmap sets are skipped since the bucket isn't in
// the queue. Ports the non_edf_bucket_can_warp == false branch
// (sched_clutch.c:948-983).
func (r *ClutchRoot) handleEDFSelection(edfBucket *ClutchRootBucket, timestamp uint64, prevBucket *ClutchRootBucket, edfBucketEnqueuedNormally bool) {
	highestRunnable := r.highestRunnableQoS()

	if prevBucket != nil && !isAboveTimeshare(prevBucket.bucket) {
		if highestRunnable == -1 || prevBucket.bucket < highestRunnable {
			highestRunnable = prevBucket.bucket
		}
	}

	if !edfBucket.starvationAvoidance {
		if highestRunnable != -1 && highestRunnable < edfBucket.bucket {
			edfBucket.starvationAvoidance = true
			edfBucket.starvationTS = timestamp
		} else {
			edfBucket.deadlineUpdate(timestamp)
			if edfBucketEnqueuedNormally {
				r.unboundRootPrioq.UpdateDeadline(edfBucket)
			}
			edfBucket.warpRemaining = rootBucketWarpUs[edfBucket.bucket]
			edfBucket.warpedDeadline = warpUnused
			if edfBucketEnqueuedNormally {
				r.unboundWarpAvailable = bitmapSet(r.unboundWarpAvailable, edfBucket.bucket)
			}
		}
	}
}

// highestRunnableQoS returns the highest-priority (lowest index) runnable
// QoS bucket across both bound and unbound hierarchies, or -1 if none.
func (r *ClutchRoot) highestRunnableQoS() int {
	combined := r.unboundRunnableBitmap | r.boundRunnableBitmap
	return bitmapLSBFirst(combined)
}

// rootBucketHighestClutchBucket finds the highest-priority clutch bucket
// within rootBucket, considering prevThread's clutch bucket via
// interactivity-adjusted priority. Ports
// sched_clutch_root_bucket_highest_clutch_bucket (sched_clutch.c:1751-1780).
func (r *ClutchRoot) rootBucketHighestClutchBucket(rootBucket *ClutchRootBucket, prevThread *Thread, firstTimeslice bool) (*SchedClutchBucket, bool) {
	if rootBucket.clutchBuckets.Empty() {
		if prevThread != nil {
			prevClutch := prevThread.ThreadGroup.clutch
			prevCB := prevClutch.clutchGroups[prevThread.SchedBucket].clutchBucket
			return prevCB, true
		}
		return nil, false
	}

	cb, _ := rootBucket.clutchBuckets.PeekHighest()

	if prevThread != nil {
		prevClutch := prevThread.ThreadGroup.clutch
		if prevClutch != nil {
			prevCBG := prevClutch.clutchGroups[prevThread.SchedBucket]
			prevClutchBucketPri := prevThread.SchedPri + prevCBG.interactivityScore
			prevCB := prevCBG.clutchBucket
			if prevCB != cb {
				if priGreaterTiebreak(prevClutchBucketPri, cb.priority, firstTimeslice) {
					return prevCB, true
				}
			}
		}
	}

	return cb, false
}

// hierarchyThreadHighest traverses the Clutch hierarchy and returns the
// highest-priority thread, considering prevThread for continuation at each
// level: root bucket (EDF+warp+starvation), clutch bucket
// (interactivity-adjusted priority), and thread (raw sched_pri with
// first-timeslice tiebreak). Ports sched_clutch_hierarchy_thread_highest
// (sched_clutch.c:2925-2981) and sched_clutch_thread_unbound_lookup
// (sched_clutch.c:2867-2901).
func (r *ClutchRoot) hierarchyThreadHighest(timestamp uint64, prevThread *Thread, firstTimeslice bool) (*Thread, *ClutchRootBucket, bool) {
	var prevBucket *ClutchRootBucket
	if prevThread != nil && !prevThread.IsRealtime() {
		if prevThread.ThreadGroup.clutch != nil {
			prevBucket = r.unboundBuckets[prevThread.SchedBucket]
		}
	}

	rootBucket, chosePrev := r.highestRootBucket(timestamp, prevBucket, prevThread)
	if rootBucket == nil {
		return nil, nil, false
	}

	if chosePrev {
		return prevThread, rootBucket, true
	}

	if rootBucket != prevBucket {
		prevThread = nil
	}

	clutchBucket, cbChosePrev := r.rootBucketHighestClutchBucket(rootBucket, prevThread, firstTimeslice)
	if clutchBucket == nil {
		return nil, rootBucket, false
	}

	if cbChosePrev {
		return prevThread, rootBucket, true
	}

	thread, _ := clutchBucket.threadRunq.PeekMax()

	if prevThread != nil && thread != nil {
		if prevThread.ThreadGroup.clutch != nil {
			prevCB := prevThread.ThreadGroup.clutch.clutchGroups[prevThread.SchedBucket].clutchBucket
			if prevCB == clutchBucket {
				if priGreaterTiebreak(prevThread.SchedPri, thread.SchedPri, firstTimeslice) {
					return prevThread, rootBucket, true
				}
			}
		}
	}

	return thread, rootBucket, false
}

func (r *ClutchRoot) String() string {
	var runnable []string
	for b := 0; b < SchedBucketMax; b++ {
		if bitmapTest(r.unboundRunnableBitmap, b) {
			runnable = append(runnable, BucketNames[b])
		}
	}
	return fmt.Sprintf("ClutchRoot(cluster=%d, pri=%d, threads=%d, runnable=%v)",
		r.clusterID, r.priority, r.thrCount, runnable)
}
