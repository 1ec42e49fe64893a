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

// Package httpapi exposes a running simulation's read-only inspection
// surface over HTTP, the way server/apiservice wraps analysis.Collection
// for the dashboard frontend.
package httpapi

import "github.com/google/clutchsched/sched"

// ProcessorsResponse lists every processor's dispatch snapshot.
type ProcessorsResponse struct {
	Processors []sched.ProcessorSnapshot `json:"processors"`
}

// ThreadsResponse lists every known thread's scheduling snapshot.
type ThreadsResponse struct {
	Threads []sched.ThreadSnapshot `json:"threads"`
}

// ThreadRequest identifies a single thread by id for the get_thread route.
type ThreadRequest struct {
	TID sched.ThreadID `json:"tid"`
}

// ThreadResponse carries one thread's snapshot.
type ThreadResponse struct {
	Thread sched.ThreadSnapshot `json:"thread"`
}

// ThreadGroupRequest identifies a thread group by id for the
// get_clutch_bucket_groups and get_clutch_buckets routes.
type ThreadGroupRequest struct {
	ThreadGroupID sched.ThreadGroupID `json:"thread_group_id"`
}

// ClutchBucketGroupsResponse lists one thread group's per-bucket
// interactivity snapshots.
type ClutchBucketGroupsResponse struct {
	ThreadGroupID sched.ThreadGroupID               `json:"thread_group_id"`
	Buckets       []sched.ClutchBucketGroupSnapshot `json:"buckets"`
}

// ClutchBucketsResponse lists one thread group's per-bucket priority
// snapshots.
type ClutchBucketsResponse struct {
	ThreadGroupID sched.ThreadGroupID          `json:"thread_group_id"`
	Buckets       []sched.ClutchBucketSnapshot `json:"buckets"`
}

// RootBucketsResponse lists every bound and unbound root bucket's EDF/warp
// state.
type RootBucketsResponse struct {
	RootBuckets []sched.RootBucketSnapshot `json:"root_buckets"`
}

// TraceResponse carries the simulation's flat chronological event log.
type TraceResponse struct {
	Entries []TraceEntry `json:"entries"`
	Total   int          `json:"total"`
	Dropped int          `json:"dropped"`
}

// TraceEntry is one JSON-friendly recorded event.
type TraceEntry struct {
	TimestampUs uint64 `json:"timestamp_us"`
	Kind        string `json:"kind"`
	CPU         int    `json:"cpu,omitempty"`
	ThreadName  string `json:"thread_name,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// SummaryResponse carries the simulation's human-readable stats summary
// alongside the machine-readable totals a caller may want to chart.
type SummaryResponse struct {
	SimulationDurationUs uint64 `json:"simulation_duration_us"`
	TotalContextSwitches int64  `json:"total_context_switches"`
	TotalPreemptions     int64  `json:"total_preemptions"`
	Summary              string `json:"summary"`
}
