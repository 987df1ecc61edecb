// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package streams

import (
	"sync/atomic"

	"github.com/couchbase/godcp/base"
)

// ReadyQueue is the per-stream FIFO of outbound protocol messages. Queue
// mutation requires the owning stream's lock; the byte and item counters are
// atomic so stats and flow control can read them without contending with the
// hot path.
type ReadyQueue struct {
	queue []base.DcpResponse

	memory       uint64
	nonMetaItems uint64
}

func NewReadyQueue() *ReadyQueue {
	return &ReadyQueue{}
}

// Push appends resp. Caller must hold the stream lock.
func (q *ReadyQueue) Push(resp base.DcpResponse) {
	q.queue = append(q.queue, resp)
	atomic.AddUint64(&q.memory, uint64(resp.Size()))
	if _, ok := resp.(*base.MutationResponse); ok {
		atomic.AddUint64(&q.nonMetaItems, 1)
	}
}

// Pop removes and returns the oldest message, nil if empty. Caller must hold
// the stream lock.
func (q *ReadyQueue) Pop() base.DcpResponse {
	if len(q.queue) == 0 {
		return nil
	}
	resp := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	atomic.AddUint64(&q.memory, ^(uint64(resp.Size()) - 1))
	if _, ok := resp.(*base.MutationResponse); ok {
		atomic.AddUint64(&q.nonMetaItems, ^uint64(0))
	}
	return resp
}

// IsEmpty requires the stream lock
func (q *ReadyQueue) IsEmpty() bool {
	return len(q.queue) == 0
}

// Len requires the stream lock
func (q *ReadyQueue) Len() int {
	return len(q.queue)
}

// Clear empties the queue and resets byte accounting, returning the number
// of bytes released. Caller must hold the stream lock.
func (q *ReadyQueue) Clear() uint64 {
	freed := atomic.LoadUint64(&q.memory)
	q.queue = nil
	atomic.StoreUint64(&q.memory, 0)
	atomic.StoreUint64(&q.nonMetaItems, 0)
	return freed
}

// Memory is safe to call without the stream lock
func (q *ReadyQueue) Memory() uint64 {
	return atomic.LoadUint64(&q.memory)
}

// NonMetaItems is the number of queued mutations, excluding markers and
// control messages. Safe to call without the stream lock.
func (q *ReadyQueue) NonMetaItems() uint64 {
	return atomic.LoadUint64(&q.nonMetaItems)
}
