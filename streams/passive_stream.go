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

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/service_def"
	mc "github.com/couchbase/gomemcached"
	"github.com/pkg/errors"
)

// passiveStreamBuffer is the bounded receive buffer between the network
// decode path and the apply path. Its lock is distinct from the stream lock
// and is always acquired first when both are needed, so the network reader
// never blocks behind apply-side work.
type passiveStreamBuffer struct {
	lock     sync.Mutex
	messages []base.DcpResponse

	bytes uint32
	items uint32
}

// PassiveStream applies an incoming ordered stream on the consumer side.
// MessageReceived enqueues from the decode goroutine; ProcessBufferedMessages
// drains from a worker context and writes through to the storage engine,
// respecting snapshot boundaries.
type PassiveStream struct {
	*stream

	notifier streamNotifier
	engine   service_def.KVEngine

	buffer passiveStreamBuffer

	lastSeqno uint64

	curSnapshotStart uint64
	curSnapshotEnd   uint64
	curSnapshotType  int32

	// guarded by stateLock
	curSnapshotAck bool
}

func NewPassiveStream(ctx *StreamContext, notifier streamNotifier, engine service_def.KVEngine,
	ident *base.StreamIdentity, seqRange *base.SequenceRange) *PassiveStream {
	s := &PassiveStream{
		stream:   newStream(ctx, ident, seqRange, base.StreamTypePassive, "PassiveStream"),
		notifier: notifier,
		engine:   engine,
	}
	atomic.StoreUint64(&s.lastSeqno, seqRange.StartSeqno)
	atomic.StoreInt32(&s.curSnapshotType, int32(base.SnapshotNone))
	return s
}

// AcceptStream moves the stream out of Pending once the producer has
// answered the stream request
func (s *PassiveStream) AcceptStream(status mc.Status) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state != base.StreamPending {
		return
	}
	if status == mc.SUCCESS {
		s.transitionStateNoLock(base.StreamReading)
	} else {
		s.logger.Warnf("%v: stream request rejected with status %v", s.ident, status)
		s.transitionStateNoLock(base.StreamDead)
	}
}

// MessageReceived is the ingestion entry point, called from the decode path.
// It validates shape and enqueues under the buffer lock only, without
// touching the stream lock.
func (s *PassiveStream) MessageReceived(resp base.DcpResponse) error {
	if resp == nil {
		return base.ErrorInvalidInput
	}
	if s.GetState() == base.StreamDead {
		return base.ErrorStreamDead
	}

	switch m := resp.(type) {
	case *base.MutationResponse:
		if m.BySeqno() <= atomic.LoadUint64(&s.lastSeqno) {
			return errors.Wrapf(base.ErrorInvalidInput,
				"vb %v seqno %v is not greater than last received %v",
				s.ident.Vbno, m.BySeqno(), atomic.LoadUint64(&s.lastSeqno))
		}
	case *base.SnapshotMarker:
		if m.StartSeqno > m.EndSeqno {
			return errors.Wrapf(base.ErrorInvalidInput,
				"vb %v malformed snapshot %v..%v", s.ident.Vbno, m.StartSeqno, m.EndSeqno)
		}
	}

	s.buffer.lock.Lock()
	defer s.buffer.lock.Unlock()
	if atomic.LoadUint32(&s.buffer.bytes)+resp.Size() > s.ctx.Settings.ConsumerBufferBytes {
		return base.ErrorBufferFull
	}
	s.buffer.messages = append(s.buffer.messages, resp)
	atomic.AddUint32(&s.buffer.bytes, resp.Size())
	atomic.AddUint32(&s.buffer.items, 1)
	return nil
}

// ProcessBufferedMessages drains up to batchSize buffered messages into the
// storage engine. Messages stay in the buffer until successfully applied: on
// CannotProcess the caller retries the same batch, losing nothing.
func (s *PassiveStream) ProcessBufferedMessages(batchSize int) (processedBytes uint32, result base.ProcessItemsResult) {
	count := 0
	for count < batchSize {
		s.buffer.lock.Lock()
		if len(s.buffer.messages) == 0 {
			s.buffer.lock.Unlock()
			return processedBytes, base.AllProcessed
		}
		msg := s.buffer.messages[0]
		s.buffer.lock.Unlock()

		err := s.processMessage(msg)
		if err != nil {
			if errors.Cause(err) == base.ErrorTempFail {
				return processedBytes, base.CannotProcess
			}
			if errors.Cause(err) == base.ErrorStreamDead {
				// messages stranded behind a wire StreamEnd die with the
				// stream; their bytes still count as processed so the
				// producer's flow control window is made whole
				processedBytes += s.clearBuffer()
				return processedBytes, base.AllProcessed
			}
			// protocol violation confined to this stream
			s.logger.Errorf("%v: failed to process buffered message %v: %v", s.ident, msg, err)
			processedBytes += s.SetDead(base.EndStreamClosed)
			return processedBytes, base.AllProcessed
		}

		s.buffer.lock.Lock()
		s.buffer.messages[0] = nil
		s.buffer.messages = s.buffer.messages[1:]
		atomic.AddUint32(&s.buffer.bytes, ^(msg.Size() - 1))
		atomic.AddUint32(&s.buffer.items, ^uint32(0))
		s.buffer.lock.Unlock()

		processedBytes += msg.Size()
		count++
	}

	s.buffer.lock.Lock()
	remaining := len(s.buffer.messages)
	s.buffer.lock.Unlock()
	if remaining > 0 {
		return processedBytes, base.MoreToProcess
	}
	return processedBytes, base.AllProcessed
}

func (s *PassiveStream) processMessage(resp base.DcpResponse) error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state == base.StreamDead {
		return base.ErrorStreamDead
	}

	switch m := resp.(type) {
	case *base.MutationResponse:
		return s.processMutationNoLock(m)
	case *base.SnapshotMarker:
		s.processMarkerNoLock(m)
	case *base.SetVBucketState:
		return s.processSetVBucketStateNoLock(m)
	case *base.StreamEndResponse:
		s.logger.Infof("%v: stream ending. %v", s.ident, m.Reason)
		s.endStreamNoLock()
	default:
		return errors.Wrapf(base.ErrorInvalidInput, "vb %v unexpected message %v", s.ident.Vbno, resp)
	}
	return nil
}

func (s *PassiveStream) processMutationNoLock(m *base.MutationResponse) error {
	seqno := m.BySeqno()
	if base.SnapshotType(atomic.LoadInt32(&s.curSnapshotType)) == base.SnapshotNone ||
		seqno < atomic.LoadUint64(&s.curSnapshotStart) ||
		seqno > atomic.LoadUint64(&s.curSnapshotEnd) {
		return errors.Wrapf(base.ErrorSnapshotOutOfOrder, "vb %v seqno %v, window %v..%v",
			s.ident.Vbno, seqno, atomic.LoadUint64(&s.curSnapshotStart), atomic.LoadUint64(&s.curSnapshotEnd))
	}

	if err := base.InflateItemValue(m.Item); err != nil {
		return err
	}

	var err error
	if m.Item.Deleted || m.Item.Expired {
		err = s.engine.DeleteWithMeta(m.Item)
	} else {
		err = s.engine.SetWithMeta(m.Item)
	}
	if err != nil {
		return err
	}

	atomic.StoreUint64(&s.lastSeqno, seqno)
	s.handleSnapshotEndNoLock(seqno)
	return nil
}

func (s *PassiveStream) processMarkerNoLock(marker *base.SnapshotMarker) {
	atomic.StoreUint64(&s.curSnapshotStart, marker.StartSeqno)
	atomic.StoreUint64(&s.curSnapshotEnd, marker.EndSeqno)
	atomic.StoreInt32(&s.curSnapshotType, int32(marker.SourceType()))
	s.curSnapshotAck = marker.Flags&base.MarkerFlagAck > 0
}

func (s *PassiveStream) processSetVBucketStateNoLock(msg *base.SetVBucketState) error {
	if err := s.engine.SetVBucketState(s.ident.Vbno, msg.State); err != nil {
		return err
	}
	// the producer's takeover handshake stalls until this ack arrives
	s.pushToReadyNoLock(&base.SetVBucketStateAck{
		Vbno:   s.ident.Vbno,
		Opaque: msg.Opaque,
		Status: mc.SUCCESS,
	})
	s.notifier.notifyStreamReady(s.ident.Vbno)
	return nil
}

// handleSnapshotEndNoLock closes the snapshot window only once the applied
// seqno has reached its end
func (s *PassiveStream) handleSnapshotEndNoLock(seqno uint64) {
	if base.SnapshotType(atomic.LoadInt32(&s.curSnapshotType)) == base.SnapshotNone {
		return
	}
	if seqno < atomic.LoadUint64(&s.curSnapshotEnd) {
		return
	}
	if s.curSnapshotAck {
		s.pushToReadyNoLock(&base.SnapshotMarkerAck{
			Vbno:   s.ident.Vbno,
			Opaque: s.ident.Opaque,
		})
		s.curSnapshotAck = false
		s.notifier.notifyStreamReady(s.ident.Vbno)
	}
	atomic.StoreInt32(&s.curSnapshotType, int32(base.SnapshotNone))
}

// Next returns queued outbound control messages (acks). It runs on the
// network goroutine and never blocks.
func (s *PassiveStream) Next() base.DcpResponse {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	resp := s.popFromReadyNoLock()
	if resp == nil {
		atomic.StoreUint32(&s.itemsReady, 0)
	}
	return resp
}

// SetDead tears the stream down and returns the buffered bytes that were
// received but never applied, so the owner can ack them back for flow
// control. A snapshot cut short by the teardown is reported, never silently
// treated as complete.
func (s *PassiveStream) SetDead(status base.EndStreamStatus) uint32 {
	s.buffer.lock.Lock()
	defer s.buffer.lock.Unlock()
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state == base.StreamDead {
		return 0
	}

	unackedBytes := atomic.LoadUint32(&s.buffer.bytes)
	s.buffer.messages = nil
	atomic.StoreUint32(&s.buffer.bytes, 0)
	atomic.StoreUint32(&s.buffer.items, 0)

	if base.SnapshotType(atomic.LoadInt32(&s.curSnapshotType)) != base.SnapshotNone &&
		atomic.LoadUint64(&s.lastSeqno) < atomic.LoadUint64(&s.curSnapshotEnd) {
		s.logger.Warnf("%v: stream closed with incomplete snapshot, applied %v of %v..%v. %v",
			s.ident, atomic.LoadUint64(&s.lastSeqno),
			atomic.LoadUint64(&s.curSnapshotStart), atomic.LoadUint64(&s.curSnapshotEnd), status)
	} else {
		s.logger.Infof("%v: stream ending. %v", s.ident, status)
	}

	s.endStreamNoLock()
	return unackedBytes
}

// clearBuffer drops everything still queued and returns the freed bytes.
// Callers must not hold the buffer lock.
func (s *PassiveStream) clearBuffer() uint32 {
	s.buffer.lock.Lock()
	defer s.buffer.lock.Unlock()
	freed := atomic.LoadUint32(&s.buffer.bytes)
	s.buffer.messages = nil
	atomic.StoreUint32(&s.buffer.bytes, 0)
	atomic.StoreUint32(&s.buffer.items, 0)
	return freed
}

func (s *PassiveStream) endStreamNoLock() {
	if s.state == base.StreamDead {
		return
	}
	s.transitionStateNoLock(base.StreamDead)
	atomic.StoreInt32(&s.curSnapshotType, int32(base.SnapshotNone))
}

// GetLastSeqno is lock free, for stats
func (s *PassiveStream) GetLastSeqno() uint64 {
	return atomic.LoadUint64(&s.lastSeqno)
}

// BufferedBytes is lock free, for flow control decisions
func (s *PassiveStream) BufferedBytes() uint32 {
	return atomic.LoadUint32(&s.buffer.bytes)
}

// BufferedItems is lock free, for stats
func (s *PassiveStream) BufferedItems() uint32 {
	return atomic.LoadUint32(&s.buffer.items)
}

// StatsMap returns a point-in-time snapshot of the stream's counters
func (s *PassiveStream) StatsMap() map[string]interface{} {
	statsMap := make(map[string]interface{})
	statsMap["vbno"] = s.ident.Vbno
	statsMap["state"] = s.GetState().String()
	statsMap["last_seqno"] = s.GetLastSeqno()
	statsMap["buffered_bytes"] = s.BufferedBytes()
	statsMap["buffered_items"] = s.BufferedItems()
	statsMap["cur_snapshot_start"] = atomic.LoadUint64(&s.curSnapshotStart)
	statsMap["cur_snapshot_end"] = atomic.LoadUint64(&s.curSnapshotEnd)
	return statsMap
}

var _ Stream = (*PassiveStream)(nil)
