// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package service_impl

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/log"
	"github.com/stretchr/testify/assert"
)

// countingTask records its runs and optionally retires after a limit
type countingTask struct {
	runs      uint32
	retireAt  uint32
	ranCh     chan bool
	keepGoing bool
}

func newCountingTask(retireAt uint32) *countingTask {
	return &countingTask{retireAt: retireAt, ranCh: make(chan bool, 16), keepGoing: true}
}

func (t *countingTask) Run() bool {
	runs := atomic.AddUint32(&t.runs, 1)
	t.ranCh <- true
	if t.retireAt > 0 && runs >= t.retireAt {
		return false
	}
	return t.keepGoing
}

func (t *countingTask) Description() string {
	return "counting task"
}

func waitForRun(t *testing.T, task *countingTask) {
	select {
	case <-task.ranCh:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run in time")
	}
}

func TestSchedulerWakeup(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestSchedulerWakeup =================")
	scheduler := NewTaskScheduler(log.DefaultLoggerContext)
	defer scheduler.Stop()

	task := newCountingTask(0)
	assert.Nil(scheduler.Schedule(task))
	// scheduling alone does not run the task
	assert.Zero(atomic.LoadUint32(&task.runs))

	scheduler.Wakeup(task)
	waitForRun(t, task)
	assert.Equal(uint32(1), atomic.LoadUint32(&task.runs))

	scheduler.Wakeup(task)
	waitForRun(t, task)
	assert.Equal(uint32(2), atomic.LoadUint32(&task.runs))
	fmt.Println("============== Test case end: TestSchedulerWakeup =================")
}

func TestSchedulerSnooze(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestSchedulerSnooze =================")
	scheduler := NewTaskScheduler(log.DefaultLoggerContext)
	defer scheduler.Stop()

	task := newCountingTask(0)
	assert.Nil(scheduler.Schedule(task))

	scheduler.Snooze(task, 10*time.Millisecond)
	waitForRun(t, task)
	assert.NotZero(atomic.LoadUint32(&task.runs))
	fmt.Println("============== Test case end: TestSchedulerSnooze =================")
}

func TestSchedulerTaskRetires(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestSchedulerTaskRetires =================")
	scheduler := NewTaskScheduler(log.DefaultLoggerContext)
	defer scheduler.Stop()

	task := newCountingTask(1)
	assert.Nil(scheduler.Schedule(task))
	scheduler.Wakeup(task)
	waitForRun(t, task)

	// the retired task no longer responds to wakeups; rescheduling it is
	// allowed once its runner has drained
	assert.Eventually(func() bool {
		return scheduler.Schedule(task) == nil
	}, 5*time.Second, 10*time.Millisecond)
	fmt.Println("============== Test case end: TestSchedulerTaskRetires =================")
}

func TestSchedulerCancelAndStop(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestSchedulerCancelAndStop =================")
	scheduler := NewTaskScheduler(log.DefaultLoggerContext)

	task := newCountingTask(0)
	assert.Nil(scheduler.Schedule(task))
	assert.Equal(base.ErrorInvalidInput, scheduler.Schedule(task))

	scheduler.Cancel(task)
	runsAfterCancel := atomic.LoadUint32(&task.runs)
	scheduler.Wakeup(task)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(runsAfterCancel, atomic.LoadUint32(&task.runs))

	scheduler.Stop()
	assert.Equal(base.ErrorTaskCancelled, scheduler.Schedule(newCountingTask(0)))
	fmt.Println("============== Test case end: TestSchedulerCancelAndStop =================")
}
