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

// Package sched implements the Clutch scheduler decision engine: a
// three-level thread/clutch-bucket/root-bucket hierarchy combined with
// earliest-deadline-first QoS ordering, a warp mechanism, starvation
// avoidance, timeshare priority decay, and a realtime runqueue. It is a
// faithful port of XNU's sched_clutch.c/sched_prim.c behavior into a
// deterministic, single-threaded decision kernel driven by an external
// event source.
package sched

// Priority band (sched.h:79-177).
const (
	NRQSMax     = 128
	MaxPri      = NRQSMax - 1 // 127
	MinPri      = 0
	IdlePri     = MinPri
	NoPri       = -1

	BasePriRealtime = MaxPri - (NRQSMax / 4) + 1 // 96
	BasePriRTQueues = BasePriRealtime + 1        // 97

	MaxPriKernel    = BasePriRealtime - 1 // 95
	BasePriPreempt  = MaxPriKernel - 3    // 92

	BasePriDefault       = 31
	BasePriControl       = BasePriDefault + 17 // 48: fixed-priority system services (e.g. WindowServer)
	BasePriForeground    = BasePriDefault + 16 // 47
	BasePriUserInitiated = BasePriDefault + 6  // 37
	BasePriUtility       = BasePriDefault - 11 // 20
	MaxPriThrottle       = MinPri + 4          // 4

	NRQS  = BasePriRealtime       // 96: non-realtime levels
	NRTQS = MaxPri - BasePriRTQueues + 1 // 31: realtime levels
)

// Realtime deadline sentinels (sched.h:296-297).
const (
	RTDeadlineNone            uint64 = 1<<64 - 1
	RTDeadlineQuantumExpired  uint64 = 1<<64 - 2
)

// Scheduler QoS buckets (sched_clutch.h, CONFIG_SCHED_CLUTCH variant).
const (
	BucketFixpri = iota // Fixed-priority (Above UI)
	BucketFG            // Foreground
	BucketIN            // User-Initiated (Clutch-only)
	BucketDF            // Default
	BucketUT            // Utility
	BucketBG            // Background
	SchedBucketMax      // sentinel: number of schedulable buckets
)

// BucketNames maps a QoS bucket index to its short display name.
var BucketNames = map[int]string{
	BucketFixpri: "FIXPRI",
	BucketFG:     "FG",
	BucketIN:     "IN",
	BucketDF:     "DF",
	BucketUT:     "UT",
	BucketBG:     "BG",
}

// SchedMode enumerates a thread's scheduling class.
type SchedMode int

// Thread scheduling classes (sched.h:184-189).
const (
	ModeRealtime SchedMode = iota + 1
	ModeFixed
	ModeTimeshare
)

func (m SchedMode) String() string {
	switch m {
	case ModeRealtime:
		return "REALTIME"
	case ModeFixed:
		return "FIXED"
	case ModeTimeshare:
		return "TIMESHARE"
	default:
		return "UNKNOWN"
	}
}

// invalidTime64 is SCHED_CLUTCH_INVALID_TIME_64: the sentinel used for "no
// timestamp recorded yet" fields.
const invalidTime64 uint64 = 1<<64 - 1

// warpUnused is SCHED_CLUTCH_ROOT_BUCKET_WARP_UNUSED.
const warpUnused uint64 = invalidTime64

// rootBucketWCELUs holds the worst-case execution latency, in microseconds,
// used to compute each root bucket's EDF deadline (sched_clutch.c:199-206).
// FIXPRI's entry is unused; FIXPRI's deadline is always 0.
var rootBucketWCELUs = [SchedBucketMax]uint64{
	BucketFixpri: 0,
	BucketFG:     0,
	BucketIN:     37500,
	BucketDF:     75000,
	BucketUT:     150000,
	BucketBG:     250000,
}

// rootBucketWarpUs holds each root bucket's warp budget in microseconds
// (sched_clutch.c:223-230).
var rootBucketWarpUs = [SchedBucketMax]uint64{
	BucketFixpri: 0,
	BucketFG:     8000,
	BucketIN:     4000,
	BucketDF:     2000,
	BucketUT:     1000,
	BucketBG:     0,
}

// threadQuantumUs holds the per-bucket thread quantum in microseconds
// (sched_clutch.c:251-258, non-macOS table).
var threadQuantumUs = [SchedBucketMax]int64{
	BucketFixpri: 10000,
	BucketFG:     10000,
	BucketIN:     8000,
	BucketDF:     6000,
	BucketUT:     4000,
	BucketBG:     2000,
}

// pendingDeltaUs holds each bucket's pending-ageout sampling window in
// microseconds (sched_clutch.c).
var pendingDeltaUs = [SchedBucketMax]int64{
	BucketFixpri: 0,
	BucketFG:     10000,
	BucketIN:     37500,
	BucketDF:     75000,
	BucketUT:     150000,
	BucketBG:     250000,
}

// Interactivity scoring constants (sched_clutch.c:1319-1334).
const (
	InteractivePriDefault = 8
	AdjustThresholdUs     = 500_000
	AdjustRatio           = 10

	initialInteractivity = InteractivePriDefault * 2
)

// Timeshare decay constants (sched.h:385-389, sched_prim.c:400-718).
const (
	SchedFixedShift  = 31
	SchedPriShiftMax = 31
	SchedDecayTicks  = 32

	// noDecayShift is INT8_MAX: the sentinel pri_shift meaning "no decay".
	noDecayShift = 127
)

// SchedTickIntervalUs is the scheduler tick period in microseconds.
const SchedTickIntervalUs = 125_000

// Enqueue options (sched_prim.h sched_options_t bits).
type EnqueueOptions uint8

const (
	OptTailQ EnqueueOptions = 1 << iota
	OptHeadQ
	OptPreempt
)

// clutch bucket hierarchy options (SCHED_CLUTCH_BUCKET_OPTIONS_*).
type clutchBucketOptions uint8

const (
	cbOptNone      clutchBucketOptions = 0
	cbOptSamePriRR clutchBucketOptions = 0x1
	cbOptHeadQ     clutchBucketOptions = 0x2
	cbOptTailQ     clutchBucketOptions = 0x4
)

// isAboveTimeshare reports whether bucket is the fixed-priority "Above UI"
// bucket, which bypasses EDF/warp/interactivity entirely.
func isAboveTimeshare(bucket int) bool {
	return bucket == BucketFixpri
}
