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

// ThreadID uniquely identifies a Thread within a ProcessorSet.
type ThreadID int

// ThreadState is a thread's coarse execution state.
type ThreadState int

const (
	ThreadRunnable ThreadState = iota + 1
	ThreadRunning
	ThreadWaiting
	ThreadTerminated
)

func (s ThreadState) String() string {
	switch s {
	case ThreadRunnable:
		return "RUNNABLE"
	case ThreadRunning:
		return "RUNNING"
	case ThreadWaiting:
		return "WAITING"
	case ThreadTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// ThreadGroupID uniquely identifies a ThreadGroup.
type ThreadGroupID int

// ThreadGroup is the Clutch scheduling unit above a Thread: a group of
// threads (typically one per application) that shares a SchedClutch bucket
// hierarchy.
type ThreadGroup struct {
	ID   ThreadGroupID
	Name string

	clutch *SchedClutch
}

func (tg *ThreadGroup) String() string {
	return fmt.Sprintf("TG(%s, id=%d)", tg.Name, tg.ID)
}

// NewThreadGroup constructs a thread group and its owned clutch bucket
// hierarchy. id must be unique within the owning ProcessorSet.
func NewThreadGroup(id ThreadGroupID, name string) *ThreadGroup {
	tg := &ThreadGroup{ID: id, Name: name}
	tg.clutch = newSchedClutch(tg)
	return tg
}

// Thread models a kernel thread's scheduling-relevant state, mirroring
// XNU's thread struct fields that drive Clutch/timeshare/RT decisions.
type Thread struct {
	TID         ThreadID
	Name        string
	ThreadGroup *ThreadGroup

	SchedMode   SchedMode
	BasePri     int
	SchedPri    int
	MaxPriority int
	SchedBucket int // QoS bucket derived from mode and priority.

	CPUUsage      int64 // Accumulated CPU usage used for stats/aging.
	SchedUsage    int64 // Decay-specific usage used by sched_pri computation.
	SchedStamp    int64 // Last scheduler tick when usage aging was applied.
	CPUDelta      int64 // CPU usage accumulated since the last aging pass.
	PriShift      int   // Last effective priority-shift used for sched_usage charging.

	QuantumRemaining int64
	FirstTimeslice   bool

	RTPeriod      int64
	RTComputation int64
	RTConstraint  int64
	RTDeadline    uint64

	State                ThreadState
	LastRunTime          int64
	LastMadeRunnableTime int64
	ComputationEpoch     int64

	BoundProcessor int // -1 means unbound (eligible for Clutch hierarchy).

	TotalCPUUs       int64
	TotalWaitUs      int64
	ContextSwitches  int64
	PreemptionCount  int64
}

// NewThreadParams configures NewThread. RT fields are only meaningful when
// Mode is ModeRealtime.
type NewThreadParams struct {
	Name          string
	Mode          SchedMode
	BasePri       int
	RTPeriod      int64
	RTComputation int64
	RTConstraint  int64
}

// NewThread allocates a Thread owned by tg with the given id, applying the
// same base-priority clamps and initial-quantum logic as XNU's thread
// creation path.
func NewThread(id ThreadID, tg *ThreadGroup, p NewThreadParams) *Thread {
	mode := p.Mode
	if mode == 0 {
		mode = ModeTimeshare
	}
	basePri := p.BasePri
	if basePri == 0 {
		basePri = BasePriDefault
	}
	if mode == ModeRealtime && basePri < BasePriRTQueues {
		basePri = BasePriRTQueues
	}

	name := p.Name
	if name == "" {
		name = fmt.Sprintf("thread-%d", id)
	}

	maxPriority := basePri
	if mode == ModeRealtime {
		maxPriority = MaxPri
	}

	t := &Thread{
		TID:            id,
		Name:           name,
		ThreadGroup:    tg,
		SchedMode:      mode,
		BasePri:        basePri,
		SchedPri:       basePri,
		MaxPriority:    maxPriority,
		SchedBucket:    threadBucketMap(mode, basePri),
		PriShift:       noDecayShift,
		RTPeriod:       p.RTPeriod,
		RTComputation:  p.RTComputation,
		RTConstraint:   p.RTConstraint,
		RTDeadline:     RTDeadlineNone,
		FirstTimeslice: true,
		State:          ThreadWaiting,
		BoundProcessor: -1,
	}
	t.QuantumRemaining = t.initialQuantum()
	return t
}

// IsRealtime reports whether the thread is scheduled by the RT runqueue.
func (t *Thread) IsRealtime() bool { return t.SchedMode == ModeRealtime }

// IsTimeshare reports whether the thread participates in timeshare decay.
func (t *Thread) IsTimeshare() bool { return t.SchedMode == ModeTimeshare }

// EffectivePriority is the priority used for scheduling decisions. Lock/
// turnstile priority promotion is out of scope for this scheduler core, so
// this is always SchedPri.
func (t *Thread) EffectivePriority() int { return t.SchedPri }

// initialQuantum computes the quantum a thread should start a timeslice
// with: an RT thread's own computation budget if it has one, else its
// bucket's standard quantum (sched_clutch.c thread_quantum_init()).
func (t *Thread) initialQuantum() int64 {
	if t.IsRealtime() && t.RTComputation > 0 {
		return t.RTComputation
	}
	return threadQuantumUs[t.SchedBucket]
}

// resetQuantum reinitializes the thread's timeslice budget, used whenever
// the thread is dispatched onto a processor with no quantum remaining.
func (t *Thread) resetQuantum() {
	t.QuantumRemaining = t.initialQuantum()
	t.FirstTimeslice = true
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread(%s, pri=%d, bucket=%s, %s)", t.Name, t.SchedPri, BucketNames[t.SchedBucket], t.State)
}

// convertPriToBucket maps a priority to a timeshare scheduling bucket.
// Ports sched_convert_pri_to_bucket (sched_clutch.c:353-370).
func convertPriToBucket(pri int) int {
	switch {
	case pri > BasePriUserInitiated:
		return BucketFG
	case pri > BasePriDefault:
		return BucketIN
	case pri > BasePriUtility:
		return BucketDF
	case pri > MaxPriThrottle:
		return BucketUT
	default:
		return BucketBG
	}
}

// threadBucketMap maps a thread's scheduling mode and base priority to its
// Clutch QoS bucket. Ports sched_clutch_thread_bucket_map
// (sched_clutch.c:378-399).
func threadBucketMap(mode SchedMode, basePri int) int {
	switch mode {
	case ModeRealtime:
		return BucketFixpri
	case ModeFixed:
		if basePri >= BasePriForeground {
			return BucketFixpri
		}
		return convertPriToBucket(basePri)
	default: // ModeTimeshare
		return convertPriToBucket(basePri)
	}
}
