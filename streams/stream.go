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
	"sync/atomic"

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/log"
	"github.com/couchbase/godcp/service_def"
)

// Stream is the closed set of stream kinds; ActiveStream, PassiveStream and
// NotifierStream are the only implementations.
type Stream interface {
	Identity() *base.StreamIdentity
	Range() *base.SequenceRange
	Type() base.StreamType
	GetState() base.StreamState
	IsActive() bool

	// Next returns the next outbound message, or nil meaning "nothing to
	// send now, the owner will be notified". It never blocks; it runs on the
	// network goroutine.
	Next() base.DcpResponse

	// SetDead is the universal cancellation path, idempotent and callable
	// from any goroutine. The return value is the number of buffered bytes
	// released that were never acked (non-zero only for passive streams).
	SetDead(status base.EndStreamStatus) uint32

	// NotifySeqnoAvailable re-arms a stream after Next returned nil
	NotifySeqnoAvailable(seqno uint64)

	// SetActive kicks the initial Pending transition. Default is a no-op.
	SetActive()

	Clear()
	GetReadyQueueMemory() uint64
}

// streamNotifier is the slice of the owning connection a stream calls back
// into. DcpProducer and DcpConsumer implement it.
type streamNotifier interface {
	// notifyStreamReady signals that the stream has something for Next()
	notifyStreamReady(vbno uint16)
	// scheduleCheckpointProcessor queues the stream for checkpoint extraction
	scheduleCheckpointProcessor(s *ActiveStream)
}

// StreamContext bundles the collaborators and settings shared by all streams
// of one process. It also carries the cursor uid counter so each stream gets
// a unique cursor name without a package global.
type StreamContext struct {
	Settings       *base.DcpSettings
	LoggerContext  *log.LoggerContext
	CheckpointLog  service_def.CheckpointLog
	BackfillSource service_def.BackfillSource
	Scheduler      service_def.Scheduler

	cursorUID uint64

	// total bytes across all ready queues of this context, for the
	// slow-stream policy
	readyQueueMemory uint64
}

func NewStreamContext(settings *base.DcpSettings, loggerCtx *log.LoggerContext,
	checkpointLog service_def.CheckpointLog, backfillSource service_def.BackfillSource,
	scheduler service_def.Scheduler) *StreamContext {
	if settings == nil {
		settings = base.DefaultDcpSettings()
	}
	return &StreamContext{
		Settings:       settings,
		LoggerContext:  loggerCtx,
		CheckpointLog:  checkpointLog,
		BackfillSource: backfillSource,
		Scheduler:      scheduler,
	}
}

func (ctx *StreamContext) nextCursorName(streamName string, vbno uint16) string {
	uid := atomic.AddUint64(&ctx.cursorUID, 1)
	return fmt.Sprintf("%v/vb_%v/cursor_%v", streamName, vbno, uid)
}

func (ctx *StreamContext) incrReadyQueueMemory(delta uint64) {
	atomic.AddUint64(&ctx.readyQueueMemory, delta)
}

func (ctx *StreamContext) decrReadyQueueMemory(delta uint64) {
	atomic.AddUint64(&ctx.readyQueueMemory, ^(delta - 1))
}

// TotalReadyQueueMemory is the bytes currently queued across all streams
// sharing this context
func (ctx *StreamContext) TotalReadyQueueMemory() uint64 {
	return atomic.LoadUint64(&ctx.readyQueueMemory)
}

// stream carries the identity, state and ready queue common to all three
// stream kinds. The state enum, the ready queue and the phase specific
// fields of the embedding type are guarded by stateLock.
type stream struct {
	ident      *base.StreamIdentity
	seqRange   *base.SequenceRange
	streamType base.StreamType

	stateLock sync.Mutex
	state     base.StreamState
	readyQ    *ReadyQueue

	// set when the ready queue has messages the network layer has not yet
	// been told about
	itemsReady uint32

	ctx    *StreamContext
	logger *log.CommonLogger
}

func newStream(ctx *StreamContext, ident *base.StreamIdentity, seqRange *base.SequenceRange,
	streamType base.StreamType, loggerModule string) *stream {
	return &stream{
		ident:      ident,
		seqRange:   seqRange,
		streamType: streamType,
		state:      base.StreamPending,
		readyQ:     NewReadyQueue(),
		ctx:        ctx,
		logger:     log.NewLogger(loggerModule, ctx.LoggerContext),
	}
}

func (s *stream) Identity() *base.StreamIdentity {
	return s.ident
}

func (s *stream) Range() *base.SequenceRange {
	return s.seqRange
}

func (s *stream) Type() base.StreamType {
	return s.streamType
}

func (s *stream) GetState() base.StreamState {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.state
}

func (s *stream) IsActive() bool {
	return s.GetState() != base.StreamDead
}

func (s *stream) SetActive() {
	// default is a no-op; ActiveStream overrides
}

func (s *stream) NotifySeqnoAvailable(seqno uint64) {
	// default is a no-op; producer side streams override. A consumer side
	// stream has nothing to re-arm, its data arrives from the wire.
}

func (s *stream) GetReadyQueueMemory() uint64 {
	return s.readyQ.Memory()
}

// Clear empties the ready queue and resets its byte accounting. The scoped
// lock guarantees release on every exit path.
func (s *stream) Clear() {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	s.clearReadyQNoLock()
}

func (s *stream) clearReadyQNoLock() {
	freed := s.readyQ.Clear()
	if freed > 0 {
		s.ctx.decrReadyQueueMemory(freed)
	}
}

func (s *stream) pushToReadyNoLock(resp base.DcpResponse) {
	s.readyQ.Push(resp)
	s.ctx.incrReadyQueueMemory(uint64(resp.Size()))
	atomic.StoreUint32(&s.itemsReady, 1)
}

func (s *stream) popFromReadyNoLock() base.DcpResponse {
	resp := s.readyQ.Pop()
	if resp != nil {
		s.ctx.decrReadyQueueMemory(uint64(resp.Size()))
	}
	return resp
}

// legal state transitions shared by all stream kinds
var validStreamTransitions = map[base.StreamState][]base.StreamState{
	base.StreamPending:      {base.StreamBackfilling, base.StreamInMemory, base.StreamReading, base.StreamDead},
	base.StreamBackfilling:  {base.StreamInMemory, base.StreamDead},
	base.StreamInMemory:     {base.StreamBackfilling, base.StreamTakeoverSend, base.StreamDead},
	base.StreamTakeoverSend: {base.StreamTakeoverWait, base.StreamDead},
	base.StreamTakeoverWait: {base.StreamDead},
	base.StreamReading:      {base.StreamDead},
	base.StreamDead:         {},
}

// transitionStateNoLock moves to newState after validating the edge. Caller
// must hold stateLock. Dead is irreversible. An invalid edge is an internal
// error; it is logged and refused rather than taking the process down.
func (s *stream) transitionStateNoLock(newState base.StreamState) {
	if s.state == newState {
		return
	}
	legal := false
	for _, st := range validStreamTransitions[s.state] {
		if st == newState {
			legal = true
			break
		}
	}
	if !legal {
		s.logger.Errorf(base.InvalidStateTransitionErrMsg, newState, s.ident, s.state)
		return
	}
	s.logger.Debugf("%v: transitioning from %v to %v", s.ident, s.state, newState)
	s.state = newState
}
