// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package streams

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchbase/godcp/log"
	"github.com/couchbase/godcp/service_def"
)

// how long the task sleeps when its queue runs dry; Wakeup cuts it short
const checkpointTaskIdleSnooze = 24 * time.Hour

// streamFinder resolves a pending vbucket back to its live stream. The
// producer implements it; the task holds the producer through this narrow
// interface (and drops it on cancel) so that being queued never keeps a
// stream alive by itself.
type streamFinder interface {
	FindStreamByVbid(vbno uint16) *ActiveStream
}

// CheckpointProcessorTask amortizes checkpoint item extraction across all
// active streams of one producer on a single cooperatively scheduled task,
// so no vbucket can starve the others. The queue holds distinct vbucket ids,
// not stream references.
type CheckpointProcessorTask struct {
	workQueueLock  sync.Mutex
	queue          []uint16
	queuedVbuckets map[uint16]bool

	producer streamFinder

	notified  uint32
	cancelled uint32

	iterationsBeforeYield int
	scheduler             service_def.Scheduler
	logger                *log.CommonLogger
}

func NewCheckpointProcessorTask(producer streamFinder, iterationsBeforeYield int,
	scheduler service_def.Scheduler, loggerCtx *log.LoggerContext) *CheckpointProcessorTask {
	return &CheckpointProcessorTask{
		queuedVbuckets:        make(map[uint16]bool),
		producer:              producer,
		iterationsBeforeYield: iterationsBeforeYield,
		scheduler:             scheduler,
		logger:                log.NewLogger("ChkptProcessor", loggerCtx),
	}
}

func (t *CheckpointProcessorTask) Description() string {
	return "Process checkpoint(s) for DCP producer"
}

// Run drains up to iterationsBeforeYield pending vbuckets, then yields so
// other tasks get a turn. Returns false once the task has been cancelled.
func (t *CheckpointProcessorTask) Run() bool {
	if atomic.LoadUint32(&t.cancelled) == 1 {
		return false
	}
	atomic.StoreUint32(&t.notified, 0)

	iterations := 0
	for iterations < t.iterationsBeforeYield {
		stream, popped := t.queuePop()
		if !popped {
			break
		}
		if stream != nil && stream.IsActive() {
			stream.NextCheckpointItemTask()
		}
		iterations++
	}

	if !t.queueEmpty() {
		t.scheduler.Wakeup(t)
	} else {
		t.scheduler.Snooze(t, checkpointTaskIdleSnooze)
	}
	return true
}

// Schedule queues the stream's vbucket for processing. Queuing the same
// vbucket twice before it runs collapses to one entry.
func (t *CheckpointProcessorTask) Schedule(s *ActiveStream) {
	t.pushUnique(s.Identity().Vbno)
	if atomic.CompareAndSwapUint32(&t.notified, 0, 1) {
		t.scheduler.Wakeup(t)
	}
}

// CancelTask drains the queue and drops the producer reference
func (t *CheckpointProcessorTask) CancelTask() {
	atomic.StoreUint32(&t.cancelled, 1)
	t.workQueueLock.Lock()
	defer t.workQueueLock.Unlock()
	t.queue = nil
	t.queuedVbuckets = make(map[uint16]bool)
	t.producer = nil
}

// QueueSize is purely observational
func (t *CheckpointProcessorTask) QueueSize() int {
	t.workQueueLock.Lock()
	defer t.workQueueLock.Unlock()
	return len(t.queue)
}

func (t *CheckpointProcessorTask) pushUnique(vbno uint16) {
	t.workQueueLock.Lock()
	defer t.workQueueLock.Unlock()
	if atomic.LoadUint32(&t.cancelled) == 1 {
		return
	}
	if !t.queuedVbuckets[vbno] {
		t.queue = append(t.queue, vbno)
		t.queuedVbuckets[vbno] = true
	}
}

// queuePop dequeues one vbucket and resolves it to its stream. The stream
// lookup happens after releasing the queue lock since it takes the
// producer's streams lock.
func (t *CheckpointProcessorTask) queuePop() (*ActiveStream, bool) {
	var vbno uint16
	var producer streamFinder
	t.workQueueLock.Lock()
	if len(t.queue) == 0 {
		t.workQueueLock.Unlock()
		return nil, false
	}
	vbno = t.queue[0]
	t.queue = t.queue[1:]
	delete(t.queuedVbuckets, vbno)
	producer = t.producer
	t.workQueueLock.Unlock()

	if producer == nil {
		return nil, false
	}
	return producer.FindStreamByVbid(vbno), true
}

func (t *CheckpointProcessorTask) queueEmpty() bool {
	t.workQueueLock.Lock()
	defer t.workQueueLock.Unlock()
	return len(t.queue) == 0
}

var _ service_def.Task = (*CheckpointProcessorTask)(nil)
