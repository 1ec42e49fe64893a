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

// This file exposes the read-only inspection surface of the scheduler:
// diagnostic snapshots of processor, thread, and Clutch-hierarchy state for
// external adapters (an HTTP inspector, a trace exporter). Nothing here
// mutates scheduler state.

// ProcessorSnapshot is a read-only view of one processor's dispatch state.
type ProcessorSnapshot struct {
	ID               int
	State            ProcessorState
	HasActiveThread  bool
	ActiveThreadID   ThreadID
	ActiveThreadName string
	CurrentPri       int
	QuantumEnd       uint64
	FirstTimeslice   bool
}

// Processors returns a snapshot of every processor in the set.
func (s *Scheduler) Processors() []ProcessorSnapshot {
	out := make([]ProcessorSnapshot, 0, len(s.PSet.Processors))
	for _, p := range s.PSet.Processors {
		snap := ProcessorSnapshot{
			ID:             p.ID,
			State:          p.State,
			CurrentPri:     p.CurrentPri,
			QuantumEnd:     p.QuantumEnd,
			FirstTimeslice: p.FirstTimeslice,
		}
		if p.ActiveThread != nil {
			snap.HasActiveThread = true
			snap.ActiveThreadID = p.ActiveThread.TID
			snap.ActiveThreadName = p.ActiveThread.Name
		}
		out = append(out, snap)
	}
	return out
}

// ThreadSnapshot is a read-only view of one thread's scheduling state.
type ThreadSnapshot struct {
	TID      ThreadID
	Name     string
	SchedPri int
	State    ThreadState
	CPUUsage int64
	Bucket   int
}

func threadSnapshot(t *Thread) ThreadSnapshot {
	return ThreadSnapshot{
		TID:      t.TID,
		Name:     t.Name,
		SchedPri: t.SchedPri,
		State:    t.State,
		CPUUsage: t.CPUUsage,
		Bucket:   t.SchedBucket,
	}
}

// Threads returns a snapshot of every thread the scheduler knows about.
func (s *Scheduler) Threads() []ThreadSnapshot {
	out := make([]ThreadSnapshot, 0, len(s.AllThreads))
	for _, t := range s.AllThreads {
		out = append(out, threadSnapshot(t))
	}
	return out
}

// ThreadSnapshotByID returns a snapshot of the thread with the given id, or
// an ErrUnknownID error.
func (s *Scheduler) ThreadSnapshotByID(tid ThreadID) (ThreadSnapshot, error) {
	t, err := s.ThreadByID(tid)
	if err != nil {
		return ThreadSnapshot{}, err
	}
	return threadSnapshot(t), nil
}

// ClutchBucketGroupSnapshot is a read-only view of one thread group's
// per-QoS-bucket interactivity state.
type ClutchBucketGroupSnapshot struct {
	ThreadGroupID   ThreadGroupID
	ThreadGroupName string
	Bucket          int

	InteractivityScore int
	PriShift           int
	ThreadCount        int
}

// ClutchBucketGroups returns an interactivity snapshot for every QoS bucket
// of the thread group tgID, or an ErrUnknownID error if tgID is unknown.
func (s *Scheduler) ClutchBucketGroups(tgID ThreadGroupID) ([]ClutchBucketGroupSnapshot, error) {
	tg, err := s.threadGroupByID(tgID)
	if err != nil {
		return nil, err
	}

	out := make([]ClutchBucketGroupSnapshot, 0, SchedBucketMax)
	for _, cbg := range tg.clutch.clutchGroups {
		out = append(out, ClutchBucketGroupSnapshot{
			ThreadGroupID:      tg.ID,
			ThreadGroupName:    tg.Name,
			Bucket:             cbg.bucket,
			InteractivityScore: cbg.interactivityScore,
			PriShift:           cbg.priShift,
			ThreadCount:        cbg.clutchBucket.thrCount,
		})
	}
	return out, nil
}

// ClutchBucketSnapshot is a read-only view of one clutch bucket's current
// composite priority.
type ClutchBucketSnapshot struct {
	ThreadGroupID   ThreadGroupID
	ThreadGroupName string
	Bucket          int
	Priority        int
	ThreadCount     int
}

// ClutchBuckets returns a priority snapshot for every QoS bucket of the
// thread group tgID, or an ErrUnknownID error if tgID is unknown.
func (s *Scheduler) ClutchBuckets(tgID ThreadGroupID) ([]ClutchBucketSnapshot, error) {
	tg, err := s.threadGroupByID(tgID)
	if err != nil {
		return nil, err
	}

	out := make([]ClutchBucketSnapshot, 0, SchedBucketMax)
	for _, cbg := range tg.clutch.clutchGroups {
		cb := cbg.clutchBucket
		out = append(out, ClutchBucketSnapshot{
			ThreadGroupID:   tg.ID,
			ThreadGroupName: tg.Name,
			Bucket:          cb.bucket,
			Priority:        cb.priority,
			ThreadCount:     cb.thrCount,
		})
	}
	return out, nil
}

// RootBucketSnapshot is a read-only view of one root bucket's EDF/warp
// state.
type RootBucketSnapshot struct {
	Bucket              int
	Bound               bool
	Runnable            bool
	Deadline            uint64
	WarpRemaining       uint64
	StarvationAvoidance bool
}

// RootBuckets returns a snapshot of every unbound and bound root bucket in
// the scheduler's Clutch hierarchy.
func (s *Scheduler) RootBuckets() []RootBucketSnapshot {
	root := s.ClutchRoot()
	out := make([]RootBucketSnapshot, 0, 2*SchedBucketMax)
	for _, rb := range root.unboundBuckets {
		out = append(out, rootBucketSnapshot(rb, root.unboundRunnableBitmap))
	}
	for _, rb := range root.boundBuckets {
		out = append(out, rootBucketSnapshot(rb, root.boundRunnableBitmap))
	}
	return out
}

func rootBucketSnapshot(rb *ClutchRootBucket, runnableBitmap uint32) RootBucketSnapshot {
	return RootBucketSnapshot{
		Bucket:              rb.bucket,
		Bound:               rb.bound,
		Runnable:            bitmapTest(runnableBitmap, rb.bucket),
		Deadline:            rb.deadline,
		WarpRemaining:       rb.warpRemaining,
		StarvationAvoidance: rb.starvationAvoidance,
	}
}

// threadGroupByID finds a registered thread group by id.
func (s *Scheduler) threadGroupByID(tgID ThreadGroupID) (*ThreadGroup, error) {
	for _, tg := range s.AllThreadGroups {
		if tg.ID == tgID {
			return tg, nil
		}
	}
	return nil, errUnknownThreadGroup(tgID)
}
