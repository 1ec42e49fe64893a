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
	"fmt"
	"sort"
	"strings"

	"github.com/google/clutchsched/sched"
)

// ThreadStats is a single thread's accumulated scheduling statistics.
type ThreadStats struct {
	TID         sched.ThreadID
	Name        string
	ThreadGroup string
	Bucket      int

	TotalCPUUs      int64
	TotalWaitUs     int64
	ContextSwitches int64
	Preemptions     int64

	Latencies []int64
}

// AvgLatencyUs returns the mean scheduling latency observed for this
// thread, or 0 if it was never dispatched.
func (t *ThreadStats) AvgLatencyUs() float64 {
	if len(t.Latencies) == 0 {
		return 0
	}
	var sum int64
	for _, l := range t.Latencies {
		sum += l
	}
	return float64(sum) / float64(len(t.Latencies))
}

// MaxLatencyUs returns the worst scheduling latency observed.
func (t *ThreadStats) MaxLatencyUs() int64 {
	var max int64
	for _, l := range t.Latencies {
		if l > max {
			max = l
		}
	}
	return max
}

// P99LatencyUs returns the 99th-percentile scheduling latency observed.
func (t *ThreadStats) P99LatencyUs() int64 {
	if len(t.Latencies) == 0 {
		return 0
	}
	sorted := append([]int64(nil), t.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// BucketStats aggregates statistics across all threads in a QoS bucket.
type BucketStats struct {
	Bucket            int
	Name              string
	TotalCPUUs        int64
	ThreadCount       int
	TotalLatencyUs    int64
	LatencySamples    int64
	MaxLatencyUs      int64
	StarvationEvents  int64
	WarpActivations   int64
}

// Stats collects and reports a simulation run's statistics.
type Stats struct {
	ThreadStats map[sched.ThreadID]*ThreadStats
	BucketStats map[int]*BucketStats

	TotalContextSwitches int64
	TotalPreemptions     int64
	SimulationDurationUs uint64
	ProcessorCount       int

	WakeupCount        int64
	BlockCount         int64
	QuantumExpireCount int64
	TickCount          int64
}

// NewStats constructs an empty Stats for a run across processorCount CPUs.
func NewStats(processorCount int) *Stats {
	s := &Stats{
		ThreadStats:    make(map[sched.ThreadID]*ThreadStats),
		BucketStats:    make(map[int]*BucketStats),
		ProcessorCount: processorCount,
	}
	for b := 0; b < sched.SchedBucketMax; b++ {
		s.BucketStats[b] = &BucketStats{Bucket: b, Name: sched.BucketNames[b]}
	}
	return s
}

// RegisterThread begins tracking a thread's statistics.
func (s *Stats) RegisterThread(t *sched.Thread) {
	s.ThreadStats[t.TID] = &ThreadStats{
		TID:         t.TID,
		Name:        t.Name,
		ThreadGroup: t.ThreadGroup.Name,
		Bucket:      t.SchedBucket,
	}
	s.BucketStats[t.SchedBucket].ThreadCount++
}

// RecordDispatch records scheduling latency for a thread just dispatched
// at timestampUs.
func (s *Stats) RecordDispatch(t *sched.Thread, timestampUs uint64) {
	ts, ok := s.ThreadStats[t.TID]
	if !ok || t.LastMadeRunnableTime <= 0 {
		return
	}
	latency := int64(timestampUs) - t.LastMadeRunnableTime
	ts.Latencies = append(ts.Latencies, latency)

	bs := s.BucketStats[t.SchedBucket]
	bs.TotalLatencyUs += latency
	bs.LatencySamples++
	if latency > bs.MaxLatencyUs {
		bs.MaxLatencyUs = latency
	}
}

// RecordContextSwitch tallies a context switch.
func (s *Stats) RecordContextSwitch() { s.TotalContextSwitches++ }

// RecordPreemption tallies a preemption.
func (s *Stats) RecordPreemption() { s.TotalPreemptions++ }

// Finalize pulls final per-thread counters from threads, called once the
// run has ended.
func (s *Stats) Finalize(threads []*sched.Thread, durationUs uint64) {
	s.SimulationDurationUs = durationUs
	for _, t := range threads {
		ts, ok := s.ThreadStats[t.TID]
		if !ok {
			continue
		}
		ts.TotalCPUUs = t.TotalCPUUs
		ts.TotalWaitUs = t.TotalWaitUs
		ts.ContextSwitches = t.ContextSwitches
		ts.Preemptions = t.PreemptionCount
		s.BucketStats[t.SchedBucket].TotalCPUUs += t.TotalCPUUs
	}
}

// Summary renders a formatted report of the run, mirroring the reference
// simulator's per-bucket and per-thread tables.
func (s *Stats) Summary() string {
	var sb strings.Builder
	totalCapacity := int64(s.SimulationDurationUs) * int64(s.ProcessorCount)

	sb.WriteString(strings.Repeat("=", 80) + "\n")
	sb.WriteString("XNU Clutch Scheduler Simulation Results\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&sb, "Duration: %.1fms | CPUs: %d | Context Switches: %d | Sched Ticks: %d\n\n",
		float64(s.SimulationDurationUs)/1000, s.ProcessorCount, s.TotalContextSwitches, s.TickCount)

	sb.WriteString("Per-Bucket Summary:\n")
	fmt.Fprintf(&sb, "  %-8s %7s %10s %6s %11s %11s %11s\n",
		"Bucket", "Threads", "CPU(us)", "CPU%", "AvgLat(us)", "MaxLat(us)", "P99Lat(us)")
	sb.WriteString("  " + strings.Repeat("-", 72) + "\n")

	for b := 0; b < sched.SchedBucketMax; b++ {
		bs := s.BucketStats[b]
		if bs.ThreadCount == 0 {
			continue
		}
		var cpuPct float64
		if totalCapacity > 0 {
			cpuPct = float64(bs.TotalCPUUs) / float64(totalCapacity) * 100
		}
		var avgLat float64
		if bs.LatencySamples > 0 {
			avgLat = float64(bs.TotalLatencyUs) / float64(bs.LatencySamples)
		}

		var allLats []int64
		for _, ts := range s.ThreadStats {
			if ts.Bucket == b {
				allLats = append(allLats, ts.Latencies...)
			}
		}
		var p99 int64
		if len(allLats) > 0 {
			sort.Slice(allLats, func(i, j int) bool { return allLats[i] < allLats[j] })
			idx := int(float64(len(allLats)) * 0.99)
			if idx >= len(allLats) {
				idx = len(allLats) - 1
			}
			p99 = allLats[idx]
		}

		fmt.Fprintf(&sb, "  %-8s %7d %10d %5.1f%% %11.0f %11d %11d\n",
			bs.Name, bs.ThreadCount, bs.TotalCPUUs, cpuPct, avgLat, bs.MaxLatencyUs, p99)
	}

	sb.WriteString("\nPer-Thread Detail:\n")
	fmt.Fprintf(&sb, "  %-20s %-12s %-6s %10s %8s %8s %5s %7s\n",
		"Name", "TG", "Bucket", "CPU(us)", "AvgLat", "MaxLat", "CSw", "Preempt")
	sb.WriteString("  " + strings.Repeat("-", 82) + "\n")

	ordered := make([]*ThreadStats, 0, len(s.ThreadStats))
	for _, ts := range s.ThreadStats {
		ordered = append(ordered, ts)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TotalCPUUs > ordered[j].TotalCPUUs })

	for _, ts := range ordered {
		fmt.Fprintf(&sb, "  %-20s %-12s %-6s %10d %8.0f %8d %5d %7d\n",
			ts.Name, ts.ThreadGroup, sched.BucketNames[ts.Bucket],
			ts.TotalCPUUs, ts.AvgLatencyUs(), ts.MaxLatencyUs(), ts.ContextSwitches, ts.Preemptions)
	}

	sb.WriteString(strings.Repeat("=", 80) + "\n")
	return sb.String()
}
