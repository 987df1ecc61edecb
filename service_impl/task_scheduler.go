// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package service_impl

import (
	"sync"
	"time"

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/log"
	"github.com/couchbase/godcp/service_def"
)

// a freshly scheduled task sleeps until its first Wakeup
const initialSnooze = 24 * time.Hour

// TaskScheduler runs each scheduled task on its own goroutine. The task
// sleeps between runs; Wakeup and an expired snooze both trigger the next
// Run. A task retires itself by returning false from Run.
type TaskScheduler struct {
	childrenLock sync.Mutex
	children     map[service_def.Task]*taskRunner
	stopped      bool

	childWaitGrp sync.WaitGroup
	logger       *log.CommonLogger
}

type taskRunner struct {
	task   service_def.Task
	wakeCh chan bool
	finch  chan bool

	timerLock sync.Mutex
	timer     *time.Timer

	logger *log.CommonLogger
}

func NewTaskScheduler(loggerCtx *log.LoggerContext) *TaskScheduler {
	return &TaskScheduler{
		children: make(map[service_def.Task]*taskRunner),
		logger:   log.NewLogger("TaskScheduler", loggerCtx),
	}
}

func (s *TaskScheduler) Schedule(task service_def.Task) error {
	s.childrenLock.Lock()
	defer s.childrenLock.Unlock()
	if s.stopped {
		return base.ErrorTaskCancelled
	}
	if _, exists := s.children[task]; exists {
		return base.ErrorInvalidInput
	}

	runner := &taskRunner{
		task:   task,
		wakeCh: make(chan bool, 1),
		finch:  make(chan bool, 1),
		timer:  time.NewTimer(initialSnooze),
		logger: s.logger,
	}
	s.children[task] = runner
	s.childWaitGrp.Add(1)
	go func() {
		defer s.childWaitGrp.Done()
		runner.run()
		s.remove(task)
	}()
	s.logger.Infof("scheduled task: %v", task.Description())
	return nil
}

func (s *TaskScheduler) Snooze(task service_def.Task, duration time.Duration) {
	if runner := s.find(task); runner != nil {
		runner.setSnooze(duration)
	}
}

func (s *TaskScheduler) Wakeup(task service_def.Task) {
	if runner := s.find(task); runner != nil {
		select {
		case runner.wakeCh <- true:
		default:
			// a wakeup is already pending
		}
	}
}

func (s *TaskScheduler) Cancel(task service_def.Task) {
	s.childrenLock.Lock()
	runner, exists := s.children[task]
	if exists {
		delete(s.children, task)
	}
	s.childrenLock.Unlock()
	if exists {
		close(runner.finch)
	}
}

// Stop cancels every task and waits for their goroutines to drain
func (s *TaskScheduler) Stop() {
	s.childrenLock.Lock()
	s.stopped = true
	children := s.children
	s.children = make(map[service_def.Task]*taskRunner)
	s.childrenLock.Unlock()

	for _, runner := range children {
		close(runner.finch)
	}
	s.childWaitGrp.Wait()
	s.logger.Infof("stopped, %v tasks cancelled", len(children))
}

func (s *TaskScheduler) find(task service_def.Task) *taskRunner {
	s.childrenLock.Lock()
	defer s.childrenLock.Unlock()
	return s.children[task]
}

func (s *TaskScheduler) remove(task service_def.Task) {
	s.childrenLock.Lock()
	defer s.childrenLock.Unlock()
	delete(s.children, task)
}

func (r *taskRunner) run() {
	for {
		select {
		case <-r.finch:
			return
		case <-r.wakeCh:
		case <-r.timer.C:
		}
		if !r.task.Run() {
			r.logger.Infof("task retired: %v", r.task.Description())
			return
		}
	}
}

func (r *taskRunner) setSnooze(duration time.Duration) {
	r.timerLock.Lock()
	defer r.timerLock.Unlock()
	if !r.timer.Stop() {
		select {
		case <-r.timer.C:
		default:
		}
	}
	r.timer.Reset(duration)
}

var _ service_def.Scheduler = (*TaskScheduler)(nil)
