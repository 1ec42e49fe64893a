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

package simulator

import (
	"strings"
	"testing"

	"github.com/google/clutchsched/sched"
)

func newTestStatsThread(tid sched.ThreadID, name string) *sched.Thread {
	tg := sched.NewThreadGroup(0, "tg")
	return sched.NewThread(tid, tg, sched.NewThreadParams{Name: name, BasePri: sched.BasePriDefault})
}

func TestNewStatsSeedsEveryBucket(t *testing.T) {
	s := NewStats(4)
	if len(s.BucketStats) != sched.SchedBucketMax {
		t.Fatalf("len(BucketStats) = %d, want %d", len(s.BucketStats), sched.SchedBucketMax)
	}
	for b := 0; b < sched.SchedBucketMax; b++ {
		if s.BucketStats[b] == nil || s.BucketStats[b].Name != sched.BucketNames[b] {
			t.Errorf("BucketStats[%d] = %+v, want Name %s", b, s.BucketStats[b], sched.BucketNames[b])
		}
	}
}

func TestRegisterThreadTracksBucketCount(t *testing.T) {
	s := NewStats(1)
	th := newTestStatsThread(1, "worker")

	s.RegisterThread(th)

	ts, ok := s.ThreadStats[th.TID]
	if !ok {
		t.Fatalf("ThreadStats[%d] missing after RegisterThread", th.TID)
	}
	if ts.Name != "worker" || ts.Bucket != th.SchedBucket {
		t.Errorf("ThreadStats = %+v, want Name=worker Bucket=%d", ts, th.SchedBucket)
	}
	if s.BucketStats[th.SchedBucket].ThreadCount != 1 {
		t.Errorf("BucketStats[%d].ThreadCount = %d, want 1", th.SchedBucket, s.BucketStats[th.SchedBucket].ThreadCount)
	}
}

func TestRecordDispatchSkipsThreadsNeverMadeRunnable(t *testing.T) {
	s := NewStats(1)
	th := newTestStatsThread(1, "worker")
	s.RegisterThread(th)

	s.RecordDispatch(th, 1000)

	if len(s.ThreadStats[th.TID].Latencies) != 0 {
		t.Errorf("Latencies = %v, want empty (LastMadeRunnableTime never set)", s.ThreadStats[th.TID].Latencies)
	}
}

func TestRecordDispatchAccumulatesLatency(t *testing.T) {
	s := NewStats(1)
	th := newTestStatsThread(1, "worker")
	s.RegisterThread(th)

	th.LastMadeRunnableTime = 100
	s.RecordDispatch(th, 150)

	ts := s.ThreadStats[th.TID]
	if len(ts.Latencies) != 1 || ts.Latencies[0] != 50 {
		t.Fatalf("Latencies = %v, want [50]", ts.Latencies)
	}

	bs := s.BucketStats[th.SchedBucket]
	if bs.LatencySamples != 1 || bs.TotalLatencyUs != 50 || bs.MaxLatencyUs != 50 {
		t.Errorf("bucket stats = %+v, want 1 sample totaling 50us", bs)
	}
}

func TestThreadStatsLatencySummaries(t *testing.T) {
	ts := &ThreadStats{Latencies: []int64{10, 30, 20}}

	if got := ts.AvgLatencyUs(); got != 20 {
		t.Errorf("AvgLatencyUs() = %v, want 20", got)
	}
	if got := ts.MaxLatencyUs(); got != 30 {
		t.Errorf("MaxLatencyUs() = %d, want 30", got)
	}
	if got := ts.P99LatencyUs(); got != 30 {
		t.Errorf("P99LatencyUs() = %d, want 30 (highest of 3 samples)", got)
	}
}

func TestThreadStatsLatencySummariesEmpty(t *testing.T) {
	ts := &ThreadStats{}
	if got := ts.AvgLatencyUs(); got != 0 {
		t.Errorf("AvgLatencyUs() with no samples = %v, want 0", got)
	}
	if got := ts.MaxLatencyUs(); got != 0 {
		t.Errorf("MaxLatencyUs() with no samples = %d, want 0", got)
	}
	if got := ts.P99LatencyUs(); got != 0 {
		t.Errorf("P99LatencyUs() with no samples = %d, want 0", got)
	}
}

func TestFinalizePullsPerThreadCounters(t *testing.T) {
	s := NewStats(1)
	th := newTestStatsThread(1, "worker")
	s.RegisterThread(th)

	th.TotalCPUUs = 5000
	th.TotalWaitUs = 200
	th.ContextSwitches = 3
	th.PreemptionCount = 1

	s.Finalize([]*sched.Thread{th}, 10000)

	ts := s.ThreadStats[th.TID]
	if ts.TotalCPUUs != 5000 || ts.ContextSwitches != 3 || ts.Preemptions != 1 {
		t.Errorf("ThreadStats after Finalize = %+v, want CPU=5000 CSw=3 Preempt=1", ts)
	}
	if s.SimulationDurationUs != 10000 {
		t.Errorf("SimulationDurationUs = %d, want 10000", s.SimulationDurationUs)
	}
	if s.BucketStats[th.SchedBucket].TotalCPUUs != 5000 {
		t.Errorf("BucketStats[%d].TotalCPUUs = %d, want 5000", th.SchedBucket, s.BucketStats[th.SchedBucket].TotalCPUUs)
	}
}

func TestSummaryMentionsRegisteredThreadsAndBuckets(t *testing.T) {
	s := NewStats(2)
	th := newTestStatsThread(1, "worker")
	s.RegisterThread(th)
	th.LastMadeRunnableTime = 0
	th.TotalCPUUs = 100
	s.Finalize([]*sched.Thread{th}, 1000)

	out := s.Summary()
	if !strings.Contains(out, "worker") {
		t.Errorf("Summary() missing thread name, got:\n%s", out)
	}
	if !strings.Contains(out, sched.BucketNames[th.SchedBucket]) {
		t.Errorf("Summary() missing bucket name %s, got:\n%s", sched.BucketNames[th.SchedBucket], out)
	}
}
