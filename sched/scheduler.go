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

// Scheduler is the core Clutch scheduler: it orchestrates the Clutch
// hierarchy, the RT queue, and a ProcessorSet, exposing the entry points an
// external event source (a simulation engine) drives. Ports the
// thread_setrun/thread_select/thread_dispatch/sched_tick paths from
// sched_clutch.c and sched_prim.c.
type Scheduler struct {
	PSet        *ProcessorSet
	CurrentTick int64

	AllThreads      []*Thread
	AllThreadGroups []*ThreadGroup

	TraceEnabled        bool
	TraceLog            []string
	ProcessorSwitchLog  []string
	pendingPreemptReason map[int]string

	boundRunqs []*StablePriorityQueue[*Thread]

	nextTID   ThreadID
	nextTGID  ThreadGroupID
}

// NewScheduler constructs a scheduler driving pset.
func NewScheduler(pset *ProcessorSet, trace bool) *Scheduler {
	s := &Scheduler{
		PSet:                 pset,
		TraceEnabled:         trace,
		pendingPreemptReason: make(map[int]string),
	}
	for range pset.Processors {
		s.boundRunqs = append(s.boundRunqs, NewStablePriorityQueue[*Thread](func(t *Thread) int { return t.SchedPri }))
	}
	return s
}

// NewThreadGroup allocates and registers a thread group.
func (s *Scheduler) NewThreadGroup(name string) *ThreadGroup {
	tg := NewThreadGroup(s.nextTGID, name)
	s.nextTGID++
	s.AllThreadGroups = append(s.AllThreadGroups, tg)
	return tg
}

// NewThread allocates and registers a thread owned by tg.
func (s *Scheduler) NewThread(tg *ThreadGroup, p NewThreadParams) *Thread {
	t := NewThread(s.nextTID, tg, p)
	s.nextTID++
	s.AllThreads = append(s.AllThreads, t)
	return t
}

func (s *Scheduler) trace(timestamp uint64, msg string) {
	if s.TraceEnabled {
		s.TraceLog = append(s.TraceLog, fmt.Sprintf("[%10dus] %s", timestamp, msg))
	}
}

// logProcessorSwitch records a CPU run-target change, including transitions
// to and from idle.
func (s *Scheduler) logProcessorSwitch(timestamp uint64, p *Processor, oldThread, newThread *Thread, reason string) {
	if oldThread == newThread {
		return
	}
	oldName, newName := "idle", "idle"
	if oldThread != nil {
		oldName = oldThread.Name
	}
	if newThread != nil {
		newName = newThread.Name
	}
	s.ProcessorSwitchLog = append(s.ProcessorSwitchLog,
		fmt.Sprintf("[%10dus] CPU%d: %s -> %s | reason: %s", timestamp, p.ID, oldName, newName, reason))
}

func (s *Scheduler) setPreemptionReason(p *Processor, reason string) {
	s.pendingPreemptReason[p.ID] = reason
}

// ConsumePreemptionReason returns and clears the pending preemption/dispatch
// reason recorded for p, or a generic default if none was recorded.
func (s *Scheduler) ConsumePreemptionReason(p *Processor) string {
	if r, ok := s.pendingPreemptReason[p.ID]; ok {
		delete(s.pendingPreemptReason, p.ID)
		return r
	}
	return "runnable thread became eligible for this processor"
}

// ThreadByID returns the thread with the given id, or an ErrUnknownID error.
func (s *Scheduler) ThreadByID(tid ThreadID) (*Thread, error) {
	for _, t := range s.AllThreads {
		if t.TID == tid {
			return t, nil
		}
	}
	return nil, errUnknownTID(tid)
}

// ProcessorByID returns the processor with the given id, or an ErrUnknownID
// error.
func (s *Scheduler) ProcessorByID(id int) (*Processor, error) {
	for _, p := range s.PSet.Processors {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, errUnknownProcessor(id)
}

// ClutchRoot returns the scheduler's Clutch hierarchy root.
func (s *Scheduler) ClutchRoot() *ClutchRoot { return s.PSet.ClutchRoot }

// RTRunq returns the scheduler's realtime runqueue.
func (s *Scheduler) RTRunq() *RTQueue { return s.PSet.RTRunq }

func (s *Scheduler) boundRunq(p *Processor) *StablePriorityQueue[*Thread] {
	return s.boundRunqs[p.ID]
}

// RefreshTimeshare brings a timeshare thread's sched_pri up to date for
// sched_ticks elapsed since it last ran. The driver calls this on the
// current thread before ThreadSelect reconsiders it as prevThread, matching
// XNU thread_select()'s current-thread update_priority() call.
func (s *Scheduler) RefreshTimeshare(t *Thread) {
	if t.IsTimeshare() {
		s.timeshareSetrunUpdate(t)
	}
}

// timeshareSetrunUpdate mirrors XNU's thread_setrun() update_priority()
// behavior for timeshare threads: it ages CPU usage for every sched_tick
// elapsed since the thread last ran and recomputes sched_pri.
func (s *Scheduler) timeshareSetrunUpdate(t *Thread) {
	clutch := t.ThreadGroup.clutch
	if clutch == nil {
		return
	}

	cbg := clutch.clutchGroups[t.SchedBucket]
	elapsedTicks := s.CurrentTick - t.SchedStamp
	if elapsedTicks < 0 {
		elapsedTicks = 0
	}
	if elapsedTicks == 0 {
		return
	}

	ageThreadCPUUsage(t, int(elapsedTicks))
	t.SchedStamp = s.CurrentTick

	if t.BoundProcessor >= 0 {
		t.PriShift = noDecayShift
	} else {
		t.PriShift = cbg.priShift
	}

	t.SchedPri = computeSchedPri(t, cbg)
}

// ThreadSetrun enqueues a thread that has become runnable. Returns a
// processor to signal for preemption, or nil. Ports
// sched_clutch_thread_insert (sched_clutch.c:2721-2794).
func (s *Scheduler) ThreadSetrun(t *Thread, timestamp uint64, options EnqueueOptions) *Processor {
	oldState := t.State
	t.State = ThreadRunnable
	t.LastMadeRunnableTime = int64(timestamp)
	becameRunnable := oldState != ThreadRunnable && oldState != ThreadRunning

	if t.IsTimeshare() {
		s.timeshareSetrunUpdate(t)
	}

	if t.IsRealtime() {
		return s.rtThreadSetrun(t, timestamp)
	}

	if t.BoundProcessor >= 0 {
		return s.boundThreadSetrun(t, timestamp, options)
	}

	return s.clutchThreadSetrun(t, timestamp, options, becameRunnable)
}

func (s *Scheduler) rtThreadSetrun(t *Thread, timestamp uint64) *Processor {
	if t.RTDeadline == RTDeadlineNone {
		t.RTDeadline = timestamp + uint64(t.RTConstraint)
	}

	s.RTRunq().Enqueue(t)
	s.trace(timestamp, fmt.Sprintf("RT enqueue: %s deadline=%d", t.Name, t.RTDeadline))

	return s.checkPreemption(t, timestamp, OptPreempt)
}

// clutchThreadSetrun enqueues a timeshare/fixed thread into the Clutch
// hierarchy. Ports sched_clutch_thread_insert.
func (s *Scheduler) clutchThreadSetrun(t *Thread, timestamp uint64, options EnqueueOptions, becameRunnable bool) *Processor {
	clutch := t.ThreadGroup.clutch
	if clutch == nil {
		return nil
	}

	cbg := clutch.clutchGroups[t.SchedBucket]
	cb := cbg.clutchBucket

	if becameRunnable {
		cbg.runCountInc(int64(timestamp))
	}
	clutch.thrCount++
	cbg.thrCountInc(int64(timestamp))

	preempted := options&OptTailQ == 0
	cb.threadRunq.Insert(t, preempted, int64(timestamp))
	cb.clutchpriPrioq.Insert(t)
	cb.timeshareThreads[t] = struct{}{}

	if t.SchedPri >= BasePriRTQueues {
		s.ClutchRoot().urgency++
	}

	scbOptions := cbOptTailQ
	if options&OptHeadQ != 0 {
		scbOptions = cbOptHeadQ
	}

	root := s.ClutchRoot()
	if cb.thrCount == 0 {
		cb.thrCount++
		root.thrCount++
		root.clutchBucketRunnable(cb, timestamp, scbOptions)
	} else {
		cb.thrCount++
		root.thrCount++
		root.clutchBucketUpdate(cb, timestamp, scbOptions)
	}

	tailOrHead := "TAIL"
	if preempted {
		tailOrHead = "HEAD"
	}
	s.trace(timestamp, fmt.Sprintf("Enqueue: %s -> %s (options=%s)", t.Name, cb, tailOrHead))

	return s.checkPreemption(t, timestamp, options)
}

func (s *Scheduler) boundThreadSetrun(t *Thread, timestamp uint64, options EnqueueOptions) *Processor {
	if t.BoundProcessor < 0 || t.BoundProcessor >= len(s.PSet.Processors) {
		return nil
	}
	target := s.PSet.Processors[t.BoundProcessor]

	preempted := options&OptTailQ == 0
	s.boundRunq(target).Insert(t, preempted, int64(timestamp))

	tailOrHead := "TAIL"
	if preempted {
		tailOrHead = "HEAD"
	}
	s.trace(timestamp, fmt.Sprintf("Enqueue bound: %s -> CPU%d (options=%s)", t.Name, target.ID, tailOrHead))
	return s.checkPreemption(t, timestamp, options)
}

// ThreadRemove removes a thread from its runqueue, e.g. because it was
// selected to run or is blocking. Ports sched_clutch_thread_remove
// (sched_clutch.c:2803-2858).
func (s *Scheduler) ThreadRemove(t *Thread, timestamp uint64) {
	if t.IsRealtime() {
		s.RTRunq().Remove(t)
		return
	}

	if t.BoundProcessor >= 0 {
		s.boundRunq(s.PSet.Processors[t.BoundProcessor]).Remove(t)
		return
	}

	clutch := t.ThreadGroup.clutch
	if clutch == nil {
		return
	}

	cbg := clutch.clutchGroups[t.SchedBucket]
	cb := cbg.clutchBucket

	if cb.root == nil {
		return
	}

	if t.SchedPri >= BasePriRTQueues {
		s.ClutchRoot().urgency--
	}

	cb.threadRunq.Remove(t)
	delete(cb.timeshareThreads, t)
	cb.clutchpriPrioq.Remove(t)

	clutch.thrCount--
	cbg.thrCountDec(int64(timestamp))
	root := s.ClutchRoot()
	root.thrCount--
	cb.thrCount--

	if cb.thrCount == 0 {
		root.clutchBucketEmpty(cb, timestamp, cbOptSamePriRR)
	} else {
		root.clutchBucketUpdate(cb, timestamp, cbOptSamePriRR)
	}
}

// rtPrevThreadCanContinue models XNU's first-timeslice keep-running check
// for the RT thread currently running on processor.
func (s *Scheduler) rtPrevThreadCanContinue(p *Processor, prevThread *Thread) bool {
	if s.RTRunq().Empty() {
		return true
	}

	if !p.FirstTimeslice {
		return false
	}

	rtHighestPri := s.RTRunq().HighestPriority()
	if rtHighestPri < BasePriRTQueues {
		return true
	}

	if rtHighestPri > prevThread.SchedPri {
		if s.RTRunq().strictPriority {
			return false
		}
		hiThread := s.RTRunq().PeekHighestPriority()
		if hiThread == nil {
			return true
		}
		if uint64(prevThread.RTComputation)+uint64(hiThread.RTComputation)+s.RTRunq().deadlineEpsilon >= uint64(hiThread.RTConstraint) {
			return false
		}
		return true
	}

	return s.RTRunq().PeekDeadline()+s.RTRunq().deadlineEpsilon >= prevThread.RTDeadline
}

// ThreadSelect selects the highest-priority thread to run on processor.
// When prevThread is non-nil, it participates in selection even though it
// hasn't been re-enqueued yet, matching XNU's select-then-dispatch flow.
// Ports sched_prim.c's thread_select() and
// sched_clutch_processor_highest_thread(). Returns (thread, chosePrev).
func (s *Scheduler) ThreadSelect(p *Processor, timestamp uint64, prevThread *Thread) (*Thread, bool) {
	rtThread := s.RTRunq().Peek()

	if prevThread != nil && prevThread.IsRealtime() {
		if s.rtPrevThreadCanContinue(p, prevThread) {
			s.trace(timestamp, fmt.Sprintf("Select prev RT: %s (deadline=%d)", prevThread.Name, prevThread.RTDeadline))
			return prevThread, true
		}
		if rtThread != nil {
			s.trace(timestamp, fmt.Sprintf("Select RT: %s (deadline=%d)", rtThread.Name, rtThread.RTDeadline))
			return s.RTRunq().Dequeue(), false
		}
		s.trace(timestamp, fmt.Sprintf("Select prev RT (fallback): %s (deadline=%d)", prevThread.Name, prevThread.RTDeadline))
		return prevThread, true
	}

	if rtThread != nil {
		s.trace(timestamp, fmt.Sprintf("Select RT: %s (deadline=%d)", rtThread.Name, rtThread.RTDeadline))
		return s.RTRunq().Dequeue(), false
	}

	boundRunq := s.boundRunq(p)
	boundThread, _ := boundRunq.PeekMax()
	boundPri := NoPri
	if boundThread != nil {
		boundPri = boundThread.SchedPri
	}
	clutchPri := s.ClutchRoot().priority

	prevIsBound := prevThread != nil && prevThread.BoundProcessor == p.ID
	if prevThread != nil {
		if prevIsBound {
			if prevThread.SchedPri > boundPri {
				boundPri = prevThread.SchedPri
			}
		} else {
			if prevThread.SchedPri > clutchPri {
				clutchPri = prevThread.SchedPri
			}
		}
	}

	if clutchPri > boundPri {
		if s.ClutchRoot().thrCount == 0 {
			if prevThread != nil {
				s.trace(timestamp, fmt.Sprintf("Select prev (clutch-pri): %s (pri=%d)", prevThread.Name, prevThread.SchedPri))
				return prevThread, true
			}
			return nil, false
		}

		var prevForClutch *Thread
		if prevThread != nil && prevThread.BoundProcessor < 0 {
			prevForClutch = prevThread
		}
		clutchThread, _, chosePrev := s.ClutchRoot().hierarchyThreadHighest(timestamp, prevForClutch, p.FirstTimeslice)
		if clutchThread != nil {
			if chosePrev {
				s.trace(timestamp, fmt.Sprintf("Select prev: %s (pri=%d)", clutchThread.Name, clutchThread.SchedPri))
				return clutchThread, true
			}
			s.trace(timestamp, fmt.Sprintf("Select TS: %s (pri=%d)", clutchThread.Name, clutchThread.SchedPri))
			s.ThreadRemove(clutchThread, timestamp)
			return clutchThread, false
		}
	} else {
		if boundRunq.Empty() || (prevIsBound && priGreaterTiebreak(prevThread.SchedPri, boundPri, p.FirstTimeslice)) {
			if prevThread == nil {
				return nil, false
			}
			s.trace(timestamp, fmt.Sprintf("Select prev bound: %s (pri=%d)", prevThread.Name, prevThread.SchedPri))
			return prevThread, true
		}

		if boundThread != nil {
			selected, _ := boundRunq.PopMax()
			s.trace(timestamp, fmt.Sprintf("Select bound: %s (pri=%d)", selected.Name, selected.SchedPri))
			return selected, false
		}
	}

	if prevThread != nil {
		s.trace(timestamp, fmt.Sprintf("Select prev (fallback): %s (pri=%d)", prevThread.Name, prevThread.SchedPri))
		return prevThread, true
	}

	return nil, false
}

// PreemptionAccounting applies XNU's keep_quantum rule to oldThread, the
// processor's currently running thread, before it competes in ThreadSelect
// as prevThread: oldThread keeps the remainder of its quantum only if it is
// still within its first timeslice and its priority hasn't dropped below
// the processor's starting priority since dispatch; otherwise the quantum
// is zeroed outright, which marks an RT thread's deadline as quantum-
// expired too. Transitions oldThread to ThreadRunnable. The driver must
// call this (and RefreshTimeshare) before ThreadSelect.
func (s *Scheduler) PreemptionAccounting(p *Processor, oldThread *Thread, timestamp uint64) {
	keepQuantum := p.FirstTimeslice && p.StartingPri <= oldThread.SchedPri
	if keepQuantum {
		oldThread.QuantumRemaining -= int64(timestamp) - int64(p.LastDispatchTime)
		if oldThread.QuantumRemaining < 0 {
			oldThread.QuantumRemaining = 0
		}
	} else {
		oldThread.QuantumRemaining = 0
	}

	if oldThread.IsRealtime() && oldThread.QuantumRemaining == 0 {
		oldThread.RTDeadline = RTDeadlineQuantumExpired
	}

	oldThread.State = ThreadRunnable
}

// ThreadDispatch performs a context switch on processor: it accounts CPU
// time for the outgoing thread and sets up quantum/state for the incoming
// one.
func (s *Scheduler) ThreadDispatch(p *Processor, oldThread, newThread *Thread, timestamp uint64, reason string) {
	if oldThread != nil && oldThread != newThread {
		if oldThread.ComputationEpoch > 0 {
			cpuTime := int64(timestamp) - oldThread.ComputationEpoch
			oldThread.TotalCPUUs += cpuTime
			oldThread.ComputationEpoch = 0

			if oldThread.ThreadGroup.clutch != nil {
				cbg := oldThread.ThreadGroup.clutch.clutchGroups[oldThread.SchedBucket]
				updateThreadCPUUsage(oldThread, cpuTime, cbg)
			}
		}

		switch oldThread.State {
		case ThreadWaiting:
			oldThread.LastRunTime = int64(timestamp)
		case ThreadRunnable:
			// keep_quantum accounting for a preempted thread is decided by
			// PreemptionAccounting before selection; by the time a switch
			// actually happens here, only the tally remains to take.
			oldThread.PreemptionCount++
		}

		oldThread.ContextSwitches++
		p.ContextSwitches++
	}

	newThread.State = ThreadRunning
	newThread.ComputationEpoch = int64(timestamp)
	newThread.LastRunTime = int64(timestamp)

	if newThread.LastMadeRunnableTime > 0 {
		latency := int64(timestamp) - newThread.LastMadeRunnableTime
		newThread.TotalWaitUs += latency
	}

	if newThread.QuantumRemaining <= 0 {
		newThread.resetQuantum()
	}

	p.ActiveThread = newThread
	p.CurrentPri = newThread.SchedPri
	p.State = ProcessorRunning
	p.FirstTimeslice = newThread.FirstTimeslice
	p.StartingPri = newThread.SchedPri
	p.LastDispatchTime = timestamp

	newThread.ContextSwitches++
	s.logProcessorSwitch(timestamp, p, oldThread, newThread, reason)

	s.trace(timestamp, fmt.Sprintf("Dispatch: CPU%d <- %s (pri=%d, quantum=%dus)", p.ID, newThread.Name, newThread.SchedPri, newThread.QuantumRemaining))
}

// ThreadQuantumExpire handles quantum expiry for the current thread on
// processor. Matches XNU's select-then-dispatch flow: the old thread is
// not re-enqueued before selection; it participates in EDF as prevThread
// and is only re-enqueued afterward if a different thread was selected.
func (s *Scheduler) ThreadQuantumExpire(p *Processor, timestamp uint64) *Thread {
	oldThread := p.ActiveThread
	if oldThread == nil {
		return nil
	}

	if oldThread.ComputationEpoch > 0 {
		cpuTime := int64(timestamp) - oldThread.ComputationEpoch
		oldThread.TotalCPUUs += cpuTime
		oldThread.ComputationEpoch = 0

		if oldThread.ThreadGroup.clutch != nil {
			cbg := oldThread.ThreadGroup.clutch.clutchGroups[oldThread.SchedBucket]
			updateThreadCPUUsage(oldThread, cpuTime, cbg)
		}
	}

	if oldThread.IsTimeshare() {
		s.timeshareSetrunUpdate(oldThread)
	}

	oldThread.FirstTimeslice = false
	oldThread.QuantumRemaining = 0
	if oldThread.IsRealtime() {
		oldThread.RTDeadline = RTDeadlineQuantumExpired
	}
	oldThread.State = ThreadRunnable

	s.trace(timestamp, fmt.Sprintf("Quantum expire: %s on CPU%d (new sched_pri=%d)", oldThread.Name, p.ID, oldThread.SchedPri))

	newThread, chosePrev := s.ThreadSelect(p, timestamp, oldThread)

	if chosePrev && newThread == oldThread {
		s.ThreadDispatch(p, oldThread, oldThread, timestamp,
			fmt.Sprintf("quantum expired for %s, but it remained best eligible thread", oldThread.Name))
		return oldThread
	}

	if newThread != nil {
		s.ThreadSetrun(oldThread, timestamp, OptTailQ)
		s.ThreadDispatch(p, oldThread, newThread, timestamp,
			fmt.Sprintf("quantum expired for %s; switched to higher-ranked runnable thread", oldThread.Name))
		return newThread
	}

	s.ThreadDispatch(p, oldThread, oldThread, timestamp,
		fmt.Sprintf("quantum expired for %s; no better runnable thread", oldThread.Name))
	return oldThread
}

// ThreadBlock handles a thread voluntarily blocking (sleeping/waiting).
// Returns the new thread dispatched on processor, or nil if it went idle.
func (s *Scheduler) ThreadBlock(t *Thread, p *Processor, timestamp uint64) *Thread {
	if t.ComputationEpoch > 0 {
		cpuTime := int64(timestamp) - t.ComputationEpoch
		t.TotalCPUUs += cpuTime
		t.ComputationEpoch = 0

		if t.ThreadGroup.clutch != nil {
			cbg := t.ThreadGroup.clutch.clutchGroups[t.SchedBucket]
			updateThreadCPUUsage(t, cpuTime, cbg)
		}
	}

	t.QuantumRemaining = 0
	t.State = ThreadWaiting
	t.LastRunTime = int64(timestamp)

	if !t.IsRealtime() && t.BoundProcessor < 0 {
		if clutch := t.ThreadGroup.clutch; clutch != nil {
			cbg := clutch.clutchGroups[t.SchedBucket]
			cbg.runCountDec(int64(timestamp))
		}
	}

	s.trace(timestamp, fmt.Sprintf("Block: %s on CPU%d", t.Name, p.ID))

	newThread, _ := s.ThreadSelect(p, timestamp, nil)
	if newThread != nil {
		s.ThreadDispatch(p, t, newThread, timestamp,
			fmt.Sprintf("%s blocked (voluntary sleep/I/O); selected next runnable thread", t.Name))
		return newThread
	}

	s.logProcessorSwitch(timestamp, p, t, nil, fmt.Sprintf("%s blocked and no runnable replacement was available", t.Name))
	p.ActiveThread = nil
	p.CurrentPri = NoPri
	p.State = ProcessorIdle
	return nil
}

// ThreadWakeup wakes up a blocked thread, making it runnable. Returns a
// processor to signal for preemption, or nil.
func (s *Scheduler) ThreadWakeup(t *Thread, timestamp uint64) *Processor {
	if t.State != ThreadWaiting {
		return nil
	}

	if t.IsRealtime() {
		t.RTDeadline = timestamp + uint64(t.RTConstraint)
	}

	s.trace(timestamp, fmt.Sprintf("Wakeup: %s", t.Name))
	return s.ThreadSetrun(t, timestamp, OptPreempt|OptTailQ)
}

// SchedTick performs periodic scheduler maintenance: it updates timeshare
// load shifts and ages CPU data for every runnable clutch bucket group.
func (s *Scheduler) SchedTick(timestamp uint64) {
	s.CurrentTick++

	root := s.ClutchRoot()
	for _, cb := range root.clutchBucketsList {
		cb.group.priShiftUpdate(s.CurrentTick, s.PSet.ProcessorCount)
	}

	for _, cb := range root.clutchBucketsList {
		cbg := cb.group
		reprioritized := false
		for t := range cb.timeshareThreads {
			if t.IsTimeshare() {
				ageThreadCPUUsage(t, 1)
				t.SchedStamp = s.CurrentTick
				t.PriShift = cbg.priShift
				newPri := computeSchedPri(t, cbg)
				if newPri != t.SchedPri {
					t.SchedPri = newPri
					reprioritized = true
				}
			}
		}
		if reprioritized {
			cb.threadRunq.RefreshPriorities()
		}
		if cb.root != nil {
			root.clutchBucketUpdate(cb, timestamp, cbOptNone)
		}
	}

	s.trace(timestamp, fmt.Sprintf("Sched tick #%d: %d runnable threads", s.CurrentTick, root.thrCount))
}

// checkPreemption checks whether a newly enqueued thread should preempt a
// running thread. Returns the processor that should be preempted, or nil.
func (s *Scheduler) checkPreemption(newThread *Thread, timestamp uint64, options EnqueueOptions) *Processor {
	explicitPreempt := options&OptPreempt != 0
	preemptAllowed := explicitPreempt || newThread.SchedPri >= BasePriPreempt

	if newThread.BoundProcessor >= 0 {
		target := s.PSet.Processors[newThread.BoundProcessor]
		active := target.ActiveThread
		if active == nil {
			s.setPreemptionReason(target, fmt.Sprintf("%s became runnable and CPU%d was idle", newThread.Name, target.ID))
			return target
		}
		if newThread.IsRealtime() {
			if !active.IsRealtime() {
				s.setPreemptionReason(target, fmt.Sprintf("RT thread %s preempted non-RT %s", newThread.Name, active.Name))
				return target
			}
			if newThread.SchedPri > active.SchedPri {
				s.setPreemptionReason(target, fmt.Sprintf("RT thread %s has higher RT priority than %s", newThread.Name, active.Name))
				return target
			}
			if newThread.SchedPri == active.SchedPri && newThread.RTDeadline+s.RTRunq().deadlineEpsilon < active.RTDeadline {
				s.setPreemptionReason(target, fmt.Sprintf("RT thread %s has earlier deadline than %s", newThread.Name, active.Name))
				return target
			}
			return nil
		}
		if preemptAllowed {
			if newThread.SchedPri > active.SchedPri {
				s.setPreemptionReason(target, fmt.Sprintf("%s has higher priority than running %s", newThread.Name, active.Name))
				return target
			}
			if newThread.SchedPri == active.SchedPri && explicitPreempt {
				s.setPreemptionReason(target, fmt.Sprintf("%s requested explicit preemption against equal-priority %s", newThread.Name, active.Name))
				return target
			}
		}
		return nil
	}

	if idle := s.PSet.FindIdleProcessor(); idle != nil {
		s.setPreemptionReason(idle, fmt.Sprintf("%s became runnable and was placed on an idle processor", newThread.Name))
		return idle
	}

	if newThread.IsRealtime() {
		for _, proc := range s.PSet.Processors {
			active := proc.ActiveThread
			if active == nil {
				s.setPreemptionReason(proc, fmt.Sprintf("RT thread %s found an idle processor", newThread.Name))
				return proc
			}
			if !active.IsRealtime() {
				s.setPreemptionReason(proc, fmt.Sprintf("RT thread %s preempted non-RT %s", newThread.Name, active.Name))
				return proc
			}
			if newThread.SchedPri > active.SchedPri {
				s.setPreemptionReason(proc, fmt.Sprintf("RT thread %s has higher RT priority than %s", newThread.Name, active.Name))
				return proc
			}
			if newThread.SchedPri == active.SchedPri && newThread.RTDeadline+s.RTRunq().deadlineEpsilon < active.RTDeadline {
				s.setPreemptionReason(proc, fmt.Sprintf("RT thread %s has earlier deadline than %s", newThread.Name, active.Name))
				return proc
			}
		}
		return nil
	}

	if lowest := s.PSet.FindLowestPriorityProcessor(); preemptAllowed && lowest != nil && newThread.SchedPri > lowest.CurrentPri {
		targetName := "idle"
		if lowest.ActiveThread != nil {
			targetName = lowest.ActiveThread.Name
		}
		s.setPreemptionReason(lowest, fmt.Sprintf("%s outranked lowest-priority running thread %s", newThread.Name, targetName))
		return lowest
	}

	if preemptAllowed {
		for _, proc := range s.PSet.Processors {
			active := proc.ActiveThread
			if active != nil && !active.IsRealtime() && proc.CurrentPri == newThread.SchedPri && explicitPreempt {
				s.setPreemptionReason(proc, fmt.Sprintf("%s requested explicit preemption against equal-priority %s", newThread.Name, active.Name))
				return proc
			}
		}
	}

	return nil
}

// UrgencyInc accounts for a thread entering a priority class that
// contributes to the root's urgency counter (Above UI or realtime).
func (s *Scheduler) UrgencyInc(t *Thread) {
	if isAboveTimeshare(t.SchedBucket) || t.IsRealtime() {
		s.ClutchRoot().urgency++
	}
}

// UrgencyDec accounts for a thread leaving a priority class that
// contributes to the root's urgency counter.
func (s *Scheduler) UrgencyDec(t *Thread) {
	if isAboveTimeshare(t.SchedBucket) || t.IsRealtime() {
		if s.ClutchRoot().urgency > 0 {
			s.ClutchRoot().urgency--
		}
	}
}
