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
	"math/rand"

	"github.com/google/clutchsched/sched"
)

// BehaviorProfile defines how a thread behaves over time: the CPU burst
// and blocking durations it samples for timeshare/fixed threads, or the
// period/computation/constraint triple for realtime threads.
type BehaviorProfile struct {
	AvgCPUBurstUs     int64
	CPUBurstVariance  float64
	AvgBlockDurUs     int64
	BlockVariance     float64

	RTPeriodUs      int64
	RTComputationUs int64
	RTConstraintUs  int64
}

// DefaultBehaviorProfile returns a BehaviorProfile with the teacher
// workload's default 5ms-burst/50ms-block timeshare shape.
func DefaultBehaviorProfile() BehaviorProfile {
	return BehaviorProfile{
		AvgCPUBurstUs:    5000,
		CPUBurstVariance: 0.3,
		AvgBlockDurUs:    50000,
		BlockVariance:    0.3,
	}
}

func sampleRange(rng *rand.Rand, avg int64, variance float64) int64 {
	lo := int64(float64(avg) * (1 - variance))
	if lo < 100 {
		lo = 100
	}
	hi := int64(float64(avg) * (1 + variance))
	if hi < lo+100 {
		hi = lo + 100
	}
	return lo + rng.Int63n(hi-lo+1)
}

// SampleCPUBurst samples a CPU burst duration using rng.
func (b BehaviorProfile) SampleCPUBurst(rng *rand.Rand) int64 {
	return sampleRange(rng, b.AvgCPUBurstUs, b.CPUBurstVariance)
}

// SampleBlockDuration samples a blocking duration using rng.
func (b BehaviorProfile) SampleBlockDuration(rng *rand.Rand) int64 {
	return sampleRange(rng, b.AvgBlockDurUs, b.BlockVariance)
}

// WorkloadProfile describes a set of identically-behaved threads sharing a
// thread group.
type WorkloadProfile struct {
	Name            string
	ThreadGroupName string
	NumThreads      int
	SchedMode       sched.SchedMode
	BasePri         int
	Behavior        BehaviorProfile
}

// WorkloadResult is the outcome of instantiating a WorkloadProfile: the
// thread group it created, its threads, and each thread's behavior (by
// matching index).
type WorkloadResult struct {
	ThreadGroup *sched.ThreadGroup
	Threads     []*sched.Thread
	Behaviors   []BehaviorProfile
}

// CreateWorkload instantiates profile's thread group and threads against
// s, without registering them with any simulation engine.
func CreateWorkload(s *sched.Scheduler, profile WorkloadProfile) WorkloadResult {
	tg := s.NewThreadGroup(profile.ThreadGroupName)

	mode := profile.SchedMode
	if mode == 0 {
		mode = sched.ModeTimeshare
	}

	result := WorkloadResult{ThreadGroup: tg}
	for i := 0; i < profile.NumThreads; i++ {
		name := fmt.Sprintf("%s-%d", profile.Name, i)
		t := s.NewThread(tg, sched.NewThreadParams{
			Name:          name,
			Mode:          mode,
			BasePri:       profile.BasePri,
			RTPeriod:      profile.Behavior.RTPeriodUs,
			RTComputation: profile.Behavior.RTComputationUs,
			RTConstraint:  profile.Behavior.RTConstraintUs,
		})
		result.Threads = append(result.Threads, t)
		result.Behaviors = append(result.Behaviors, profile.Behavior)
	}
	return result
}

// Built-in scenario workloads, ported from the reference simulator's
// profile library. Each models a recognizable macOS-style application mix
// exercising a distinct corner of the QoS hierarchy.

// InteractiveAppWorkload models a Safari-like app: short CPU bursts, long
// blocks, Foreground bucket.
func InteractiveAppWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "safari-main", ThreadGroupName: "Safari", NumThreads: 2,
			BasePri: sched.BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 2000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 100000, BlockVariance: 0.3},
		},
		{
			Name: "safari-render", ThreadGroupName: "Safari", NumThreads: 2,
			BasePri: sched.BasePriUserInitiated,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 5000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 30000, BlockVariance: 0.3},
		},
	}
}

// BackgroundCompileWorkload models an Xcode-like build: long CPU bursts,
// short blocks, Default bucket.
func BackgroundCompileWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "clang", ThreadGroupName: "Xcode-Build", NumThreads: 4,
			BasePri: sched.BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 80000, CPUBurstVariance: 0.4,
				AvgBlockDurUs: 5000, BlockVariance: 0.3},
		},
	}
}

// MediaPlaybackWorkload models a single realtime audio/video thread with a
// periodic 30fps-like activation.
func MediaPlaybackWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "audio-rt", ThreadGroupName: "CoreAudio", NumThreads: 1,
			SchedMode: sched.ModeRealtime, BasePri: sched.BasePriRealtime,
			Behavior: BehaviorProfile{RTPeriodUs: 33333, RTComputationUs: 5000, RTConstraintUs: 10000},
		},
	}
}

// MixedWorkload combines interactive, compile, and media workloads
// competing for the same CPUs.
func MixedWorkload() []WorkloadProfile {
	var profiles []WorkloadProfile
	profiles = append(profiles, InteractiveAppWorkload()...)
	profiles = append(profiles, BackgroundCompileWorkload()...)
	profiles = append(profiles, MediaPlaybackWorkload()...)
	return profiles
}

// StarvationTestWorkload pairs heavy Foreground load with Background
// threads, to verify Background still gets CPU within its WCEL.
func StarvationTestWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "fg-heavy", ThreadGroupName: "FG-App", NumThreads: 8,
			BasePri: sched.BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 15000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 5000, BlockVariance: 0.3},
		},
		{
			Name: "bg-worker", ThreadGroupName: "BG-Indexer", NumThreads: 2,
			BasePri: sched.MaxPriThrottle,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 50000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 10000, BlockVariance: 0.3},
		},
	}
}

// WarpDemoWorkload demonstrates warp: bursty Foreground work arriving
// while lower-QoS buckets are running.
func WarpDemoWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "fg-burst", ThreadGroupName: "FG-Burst", NumThreads: 2,
			BasePri: sched.BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 3000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 200000, BlockVariance: 0.3},
		},
		{
			Name: "df-steady", ThreadGroupName: "DF-Steady", NumThreads: 4,
			BasePri: sched.BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 20000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 10000, BlockVariance: 0.3},
		},
		{
			Name: "bg-batch", ThreadGroupName: "BG-Batch", NumThreads: 2,
			BasePri: sched.MaxPriThrottle,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 100000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 5000, BlockVariance: 0.3},
		},
	}
}

// DesktopDayWorkload models an everyday laptop mix: interactive apps plus
// background services.
func DesktopDayWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "browser-ui", ThreadGroupName: "Browser", NumThreads: 3,
			BasePri: sched.BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 2500, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 120000, BlockVariance: 0.3},
		},
		{
			Name: "chat-ui", ThreadGroupName: "ChatApp", NumThreads: 2,
			BasePri: sched.BasePriUserInitiated,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 3000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 70000, BlockVariance: 0.3},
		},
		{
			Name: "ide-index", ThreadGroupName: "IDE", NumThreads: 3,
			BasePri: sched.BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 25000, CPUBurstVariance: 0.35,
				AvgBlockDurUs: 15000, BlockVariance: 0.3},
		},
		{
			Name: "photo-bg", ThreadGroupName: "PhotoLibrary", NumThreads: 2,
			BasePri: sched.MaxPriThrottle,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 60000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 12000, BlockVariance: 0.3},
		},
	}
}

// RTStudioWorkload models a media studio: multiple realtime streams plus
// non-RT app activity.
func RTStudioWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "audio-engine", ThreadGroupName: "DAW", NumThreads: 1,
			SchedMode: sched.ModeRealtime, BasePri: sched.BasePriRealtime,
			Behavior: BehaviorProfile{RTPeriodUs: 10000, RTComputationUs: 2000, RTConstraintUs: 3000},
		},
		{
			Name: "video-capture", ThreadGroupName: "Capture", NumThreads: 1,
			SchedMode: sched.ModeRealtime, BasePri: sched.BasePriRealtime,
			Behavior: BehaviorProfile{RTPeriodUs: 33333, RTComputationUs: 7000, RTConstraintUs: 12000},
		},
		{
			Name: "daw-ui", ThreadGroupName: "DAW", NumThreads: 2,
			BasePri: sched.BasePriUserInitiated,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 3500, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 25000, BlockVariance: 0.3},
		},
		{
			Name: "export-bg", ThreadGroupName: "Exporter", NumThreads: 2,
			BasePri: sched.BasePriUtility,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 50000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 8000, BlockVariance: 0.3},
		},
	}
}

// FixedPriorityServiceWorkload shows fixed-priority threads competing
// alongside timeshare buckets.
func FixedPriorityServiceWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "windowserver-fix", ThreadGroupName: "WindowServer", NumThreads: 1,
			SchedMode: sched.ModeFixed, BasePri: sched.BasePriControl,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 4000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 6000, BlockVariance: 0.3},
		},
		{
			Name: "foreground-app", ThreadGroupName: "Editor", NumThreads: 3,
			BasePri: sched.BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 8000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 15000, BlockVariance: 0.3},
		},
		{
			Name: "utility-sync", ThreadGroupName: "SyncAgent", NumThreads: 2,
			BasePri: sched.BasePriUtility,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 30000, CPUBurstVariance: 0.3,
				AvgBlockDurUs: 12000, BlockVariance: 0.3},
		},
	}
}

// CPUStormWorkload models a CPU-saturated system with heavy contention
// across multiple QoS lanes.
func CPUStormWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "fg-hot", ThreadGroupName: "Renderer", NumThreads: 6,
			BasePri: sched.BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 120000, CPUBurstVariance: 0.2,
				AvgBlockDurUs: 1000, BlockVariance: 0.3},
		},
		{
			Name: "df-hot", ThreadGroupName: "CompilerFarm", NumThreads: 8,
			BasePri: sched.BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 100000, CPUBurstVariance: 0.25,
				AvgBlockDurUs: 2000, BlockVariance: 0.3},
		},
		{
			Name: "ut-batch", ThreadGroupName: "Analytics", NumThreads: 4,
			BasePri: sched.BasePriUtility,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 150000, CPUBurstVariance: 0.25,
				AvgBlockDurUs: 3000, BlockVariance: 0.3},
		},
	}
}

// Scenarios maps a scenario name to its workload-profile constructor, for
// command-line or HTTP-driven scenario selection.
var Scenarios = map[string]func() []WorkloadProfile{
	"interactive": InteractiveAppWorkload,
	"compile":     BackgroundCompileWorkload,
	"media":       MediaPlaybackWorkload,
	"mixed":       MixedWorkload,
	"starvation":  StarvationTestWorkload,
	"warp":        WarpDemoWorkload,
	"desktop":     DesktopDayWorkload,
	"rt_studio":   RTStudioWorkload,
	"fixed":       FixedPriorityServiceWorkload,
	"cpu_storm":   CPUStormWorkload,
}
