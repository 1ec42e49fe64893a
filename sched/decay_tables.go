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

// decayShift holds the two-shift approximation of (5/8)^ticks used by
// ageThreadCPUUsage. A positive shift2 means the second term is added; a
// negative shift2 means it's subtracted (see ageThreadCPUUsage).
type decayShift struct {
	shift1 int
	shift2 int
}

// schedDecayShifts is sched_decay_shifts[] from XNU's priority.c, index by
// tick count (index 0 is unused; decay is only applied for ticks>=1). This
// table must be reproduced bit-for-bit: it is XNU's fixed-point
// approximation of (5/8)^ticks, not a literal multiplication.
var schedDecayShifts = [SchedDecayTicks]decayShift{
	{1, 1},
	{1, 3},
	{1, -3},
	{2, -7},
	{3, 5},
	{3, -5},
	{4, -8},
	{5, 7},
	{5, -7},
	{6, -10},
	{7, 10},
	{7, -9},
	{8, -11},
	{9, 12},
	{9, -11},
	{10, -13},
	{11, 14},
	{11, -13},
	{12, -15},
	{13, 17},
	{13, -15},
	{14, -17},
	{15, 19},
	{16, 18},
	{16, -19},
	{17, 22},
	{18, 20},
	{18, -20},
	{19, 26},
	{20, 22},
	{20, -22},
	{21, -27},
}

// schedLoadShifts is sched_load_shifts[], generated by loadShiftInit() with
// decay_penalty=1 (sched_prim.c:676-718). schedLoadShifts[0] is -128
// (INT8_MIN, unreachable in practice since load is always clamped >= 0 here
// but kept for parity) and schedLoadShifts[1] is 0 (no decay at load 1).
var schedLoadShifts = loadShiftInit(NRQS, 1)

// loadShiftInit reproduces XNU's load_shift_init() bit-for-bit: index 0 is
// INT8_MIN, index 1 is 0, and thereafter grows in power-of-two-sized bands
// (indices 2-3 get k=1, 4-7 get k=2, 8-15 get k=3, ...).
func loadShiftInit(nrqs int, decayPenalty uint) []int8 {
	shifts := make([]int8, nrqs)
	shifts[0] = -128
	shifts[1] = 0
	idx := 2
	j := 1 << decayPenalty // j = 2
	k := int8(1)
	for idx < nrqs {
		j <<= 1 // j = 4, 8, 16, ...
		for idx < j && idx < nrqs {
			shifts[idx] = k
			idx++
		}
		k++
	}
	return shifts
}
