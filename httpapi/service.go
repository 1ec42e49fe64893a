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

package httpapi

import (
	"context"

	"github.com/google/clutchsched/simulator"
)

// InspectionService wraps a simulation engine's scheduler and stats,
// translating inspection requests into sched snapshot calls. It never
// mutates the engine: every method here is safe to call concurrently with
// reads of a finished run.
type InspectionService struct {
	Engine *simulator.Engine
}

// GetProcessors returns every processor's dispatch snapshot.
func (svc *InspectionService) GetProcessors(ctx context.Context) (ProcessorsResponse, error) {
	return ProcessorsResponse{Processors: svc.Engine.Scheduler.Processors()}, nil
}

// GetThreads returns every known thread's scheduling snapshot.
func (svc *InspectionService) GetThreads(ctx context.Context) (ThreadsResponse, error) {
	return ThreadsResponse{Threads: svc.Engine.Scheduler.Threads()}, nil
}

// GetThread returns a single thread's scheduling snapshot.
func (svc *InspectionService) GetThread(ctx context.Context, req *ThreadRequest) (ThreadResponse, error) {
	snap, err := svc.Engine.Scheduler.ThreadSnapshotByID(req.TID)
	if err != nil {
		return ThreadResponse{}, err
	}
	return ThreadResponse{Thread: snap}, nil
}

// GetClutchBucketGroups returns a thread group's per-bucket interactivity
// snapshots.
func (svc *InspectionService) GetClutchBucketGroups(ctx context.Context, req *ThreadGroupRequest) (ClutchBucketGroupsResponse, error) {
	buckets, err := svc.Engine.Scheduler.ClutchBucketGroups(req.ThreadGroupID)
	if err != nil {
		return ClutchBucketGroupsResponse{}, err
	}
	return ClutchBucketGroupsResponse{ThreadGroupID: req.ThreadGroupID, Buckets: buckets}, nil
}

// GetClutchBuckets returns a thread group's per-bucket priority snapshots.
func (svc *InspectionService) GetClutchBuckets(ctx context.Context, req *ThreadGroupRequest) (ClutchBucketsResponse, error) {
	buckets, err := svc.Engine.Scheduler.ClutchBuckets(req.ThreadGroupID)
	if err != nil {
		return ClutchBucketsResponse{}, err
	}
	return ClutchBucketsResponse{ThreadGroupID: req.ThreadGroupID, Buckets: buckets}, nil
}

// GetRootBuckets returns every bound and unbound root bucket's EDF/warp
// state.
func (svc *InspectionService) GetRootBuckets(ctx context.Context) (RootBucketsResponse, error) {
	return RootBucketsResponse{RootBuckets: svc.Engine.Scheduler.RootBuckets()}, nil
}

// GetSummary returns the run's aggregate stats, both as structured totals
// and as the stats package's human-readable report.
func (svc *InspectionService) GetSummary(ctx context.Context) (SummaryResponse, error) {
	stats := svc.Engine.Stats
	return SummaryResponse{
		SimulationDurationUs: stats.SimulationDurationUs,
		TotalContextSwitches: stats.TotalContextSwitches,
		TotalPreemptions:     stats.TotalPreemptions,
		Summary:              stats.Summary(),
	}, nil
}

// GetTrace returns the run's retained flat chronological event log.
func (svc *InspectionService) GetTrace(ctx context.Context) (TraceResponse, error) {
	trace := svc.Engine.Trace
	entries := make([]TraceEntry, 0, len(trace.Entries()))
	for _, e := range trace.Entries() {
		entries = append(entries, TraceEntry{
			TimestampUs: e.TimestampUs,
			Kind:        e.Kind.String(),
			CPU:         e.CPU,
			ThreadName:  e.ThreadName,
			Detail:      e.Detail,
		})
	}
	return TraceResponse{Entries: entries, Total: trace.Total(), Dropped: trace.Dropped()}, nil
}
