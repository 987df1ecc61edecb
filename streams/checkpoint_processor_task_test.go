// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package streams

import (
	"fmt"
	"sync"
	"testing"

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/log"
	"github.com/couchbase/godcp/service_def/mocks"
	"github.com/stretchr/testify/assert"
	mock "github.com/stretchr/testify/mock"
)

// testStreamFinder hands out pre-built streams by vbucket
type testStreamFinder struct {
	lock    sync.Mutex
	streams map[uint16]*ActiveStream
	lookups []uint16
}

func (f *testStreamFinder) FindStreamByVbid(vbno uint16) *ActiveStream {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.lookups = append(f.lookups, vbno)
	return f.streams[vbno]
}

func setupTaskBoilerPlate(iterationsBeforeYield int) (*CheckpointProcessorTask,
	*testStreamFinder, *mocks.Scheduler) {
	finder := &testStreamFinder{streams: make(map[uint16]*ActiveStream)}
	scheduler := &mocks.Scheduler{}
	scheduler.On("Wakeup", mock.Anything)
	scheduler.On("Snooze", mock.Anything, mock.Anything)
	task := NewCheckpointProcessorTask(finder, iterationsBeforeYield, scheduler, log.DefaultLoggerContext)
	return task, finder, scheduler
}

func taskTestStream(vbno uint16) *ActiveStream {
	_, _, _, notifier, ctx := setupActiveStreamBoilerPlate()
	return newTestActiveStream(ctx, notifier, vbno, 0, 0, base.DcpMaxSeqno)
}

func TestTaskScheduleDedup(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestTaskScheduleDedup =================")
	task, _, scheduler := setupTaskBoilerPlate(10)

	s := taskTestStream(1)
	task.Schedule(s)
	task.Schedule(s)
	task.Schedule(s)

	// one queue entry and one wakeup however often the vbucket is queued
	assert.Equal(1, task.QueueSize())
	scheduler.AssertNumberOfCalls(t, "Wakeup", 1)
	fmt.Println("============== Test case end: TestTaskScheduleDedup =================")
}

func TestTaskRunDrainsAndSnoozes(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestTaskRunDrainsAndSnoozes =================")
	task, finder, scheduler := setupTaskBoilerPlate(10)

	task.Schedule(taskTestStream(1))
	task.Schedule(taskTestStream(2))

	assert.True(task.Run())
	assert.Equal(0, task.QueueSize())
	// both vbuckets were resolved through the finder, then the task went idle
	assert.ElementsMatch([]uint16{1, 2}, finder.lookups)
	scheduler.AssertCalled(t, "Snooze", task, checkpointTaskIdleSnooze)
	fmt.Println("============== Test case end: TestTaskRunDrainsAndSnoozes =================")
}

func TestTaskYieldsAtIterationLimit(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestTaskYieldsAtIterationLimit =================")
	task, _, scheduler := setupTaskBoilerPlate(2)

	task.Schedule(taskTestStream(1))
	task.Schedule(taskTestStream(2))
	task.Schedule(taskTestStream(3))

	assert.True(task.Run())
	// the limit was hit with work left over; the task re-arms itself instead
	// of snoozing
	assert.Equal(1, task.QueueSize())
	scheduler.AssertNotCalled(t, "Snooze", mock.Anything, mock.Anything)
	fmt.Println("============== Test case end: TestTaskYieldsAtIterationLimit =================")
}

func TestTaskCancel(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestTaskCancel =================")
	task, _, _ := setupTaskBoilerPlate(10)

	s := taskTestStream(1)
	task.Schedule(s)
	task.CancelTask()

	assert.Equal(0, task.QueueSize())
	assert.False(task.Run())

	// scheduling after cancel is a no-op
	task.Schedule(s)
	assert.Equal(0, task.QueueSize())
	fmt.Println("============== Test case end: TestTaskCancel =================")
}
