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

// ClutchRootBucket represents all threads across all thread groups at one
// QoS level. Root buckets are selected for execution using EDF with warp
// and starvation avoidance. Ports sched_clutch_root_bucket
// (sched_clutch.h:93-116).
type ClutchRootBucket struct {
	bucket              int
	bound               bool
	starvationAvoidance bool
	starvationTS        uint64

	deadline uint64

	warpRemaining  uint64
	warpedDeadline uint64

	clutchBuckets *ClutchBucketRunqueue[*SchedClutchBucket]
}

func newClutchRootBucket(bucket int, bound bool) *ClutchRootBucket {
	return &ClutchRootBucket{
		bucket:         bucket,
		bound:          bound,
		warpRemaining:  rootBucketWarpUs[bucket],
		warpedDeadline: warpUnused,
		clutchBuckets:  NewClutchBucketRunqueue[*SchedClutchBucket](),
	}
}

// deadlineCalculate computes the EDF deadline for this root bucket: 0 (the
// earliest possible deadline) for the fixed-priority Above UI bucket, and
// timestamp plus worst-case execution latency for every timeshare bucket.
// Ports sched_clutch_root_bucket_deadline_calculate
// (sched_clutch.c:1050-1062).
func (rb *ClutchRootBucket) deadlineCalculate(timestamp uint64) uint64 {
	if isAboveTimeshare(rb.bucket) {
		return 0
	}
	return timestamp + rootBucketWCELUs[rb.bucket]
}

// deadlineUpdate refreshes the bucket's deadline when it's selected to run.
// Ports sched_clutch_root_bucket_deadline_update (sched_clutch.c:1071-1095).
func (rb *ClutchRootBucket) deadlineUpdate(timestamp uint64) {
	if isAboveTimeshare(rb.bucket) {
		return
	}
	rb.deadline = rb.deadlineCalculate(timestamp)
}

// resetWarp restores the bucket's warp budget to full, used when the
// bucket is selected in natural EDF order rather than via a warp jump.
func (rb *ClutchRootBucket) resetWarp() {
	rb.warpRemaining = rootBucketWarpUs[rb.bucket]
	rb.warpedDeadline = warpUnused
}

// onEmpty handles the root bucket becoming empty, settling any in-progress
// warp budget against the time actually used. Ports
// sched_clutch_root_bucket_empty (sched_clutch.c:1141-1179).
func (rb *ClutchRootBucket) onEmpty(timestamp uint64) {
	if isAboveTimeshare(rb.bucket) {
		return
	}
	if rb.warpedDeadline != warpUnused {
		if rb.warpedDeadline > timestamp {
			rb.warpRemaining = rb.warpedDeadline - timestamp
		} else {
			rb.warpRemaining = 0
		}
	}
}

func (rb *ClutchRootBucket) String() string {
	boundStr := "unbound"
	if rb.bound {
		boundStr = "bound"
	}
	return fmt.Sprintf("RootBucket(%s, %s, deadline=%d)", BucketNames[rb.bucket], boundStr, rb.deadline)
}
