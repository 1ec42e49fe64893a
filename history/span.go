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

// Package history indexes a simulation run's per-CPU dispatch record so
// that "what was running on CPU N at time T" and "what ran on CPU N
// between T1 and T2" can be answered without rescanning the whole run.
package history

import (
	"fmt"

	"github.com/Workiva/go-datastructures/augmentedtree"
)

// queryID is the interval ID given to query intervals. Real spans are
// numbered from 0 too, so the first span shares this ID; query intervals
// are never inserted into a tree, so the shared ID has no effect.
const queryID uint64 = 0

// BusySpan is a duration during which a CPU was busy running a specific
// thread. Implements augmentedtree.Interval so a CPU's full dispatch
// history can be indexed and range-queried.
type BusySpan struct {
	id         uint64
	CPU        int
	ThreadID   int
	ThreadName string
	StartUs    uint64
	EndUs      uint64
}

// LowAtDimension returns the span's start time. Required by
// augmentedtree.Interval.
func (s *BusySpan) LowAtDimension(d uint64) int64 { return int64(s.StartUs) }

// HighAtDimension returns the span's end time. Required by
// augmentedtree.Interval.
func (s *BusySpan) HighAtDimension(d uint64) int64 { return int64(s.EndUs) }

// OverlapsAtDimension reports whether j overlaps this span in time.
// Required by augmentedtree.Interval.
func (s *BusySpan) OverlapsAtDimension(j augmentedtree.Interval, d uint64) bool {
	return s.HighAtDimension(d) >= j.LowAtDimension(d) &&
		j.HighAtDimension(d) >= s.LowAtDimension(d)
}

// ID returns this span's unique identifier. Required by
// augmentedtree.Interval.
func (s *BusySpan) ID() uint64 { return s.id }

func (s *BusySpan) String() string {
	return fmt.Sprintf("CPU%d: %s [%d - %d]", s.CPU, s.ThreadName, s.StartUs, s.EndUs)
}
