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
	"time"

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/service_def"
	"github.com/pkg/errors"
)

// ActiveStream is the producer side state machine of one vbucket stream. It
// sources historical data from the backfill scanner and live data from the
// checkpoint log, and feeds the ready queue the network layer drains through
// Next().
//
// Entry points arrive from three directions concurrently: Next() on the
// network goroutine, BackfillReceived/CompleteBackfill from the scan
// context, and NextCheckpointItemTask from the checkpoint processor task.
// All of them serialize on the stream lock.
type ActiveStream struct {
	*stream

	notifier streamNotifier

	// guarded by stateLock
	isBackfillTaskRunning bool
	pendingBackfill       bool
	firstMarkerSent       bool
	takeoverStateSent     bool
	takeoverStart         time.Time
	cursor                service_def.CheckpointCursor

	// the vbucket state the consumer is told to assume when the takeover
	// handoff completes
	takeoverState base.VbState

	// atomics, read by stats and flow control without the stream lock
	lastReadSeqno        uint64
	lastSentSeqno        uint64
	curChkSeqno          uint64
	backfillRemaining    uint64
	lastSentSnapEndSeqno uint64
	waitForSnapshot      int32

	chkptItemsExtractionInProgress uint32

	backfillItems struct {
		memory uint64
		disk   uint64
		sent   uint64
	}
	itemsFromMemoryPhase uint64

	bufferedBackfill struct {
		bytes uint32
		items uint32
	}
}

func NewActiveStream(ctx *StreamContext, notifier streamNotifier, ident *base.StreamIdentity,
	seqRange *base.SequenceRange) *ActiveStream {
	s := &ActiveStream{
		stream:        newStream(ctx, ident, seqRange, base.StreamTypeActive, "ActiveStream"),
		notifier:      notifier,
		takeoverState: base.VbActive,
	}
	atomic.StoreUint64(&s.lastReadSeqno, seqRange.StartSeqno)
	atomic.StoreUint64(&s.lastSentSeqno, seqRange.StartSeqno)
	atomic.StoreUint64(&s.curChkSeqno, seqRange.StartSeqno)

	if seqRange.StartSeqno > seqRange.EndSeqno {
		s.stateLock.Lock()
		s.endStreamNoLock(base.EndStreamOK)
		s.stateLock.Unlock()
	}
	return s
}

// SetActive kicks the Pending stream into its initial phase: Backfilling if
// part of the requested range must come from durable storage, InMemory if
// the checkpoint log can serve the whole of it.
func (s *ActiveStream) SetActive() {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.state == base.StreamPending {
		s.scheduleBackfillNoLock(false)
	}
}

// Next never blocks. A nil return means nothing to send now; the stream will
// call back through the notifier when that changes.
func (s *ActiveStream) Next() base.DcpResponse {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	var resp base.DcpResponse
	switch s.state {
	case base.StreamPending:
		// negotiation not finished yet
	case base.StreamBackfilling:
		resp = s.backfillPhase()
	case base.StreamInMemory:
		resp = s.inMemoryPhase()
	case base.StreamTakeoverSend:
		resp = s.takeoverSendPhase()
	case base.StreamTakeoverWait:
		resp = s.takeoverWaitPhase()
	case base.StreamDead:
		resp = s.deadPhase()
	default:
		s.logger.Errorf("%v: invalid state %v in Next()", s.ident, s.state)
	}

	if resp == nil {
		atomic.StoreUint32(&s.itemsReady, 0)
	}
	return resp
}

func (s *ActiveStream) backfillPhase() base.DcpResponse {
	resp := s.nextQueuedItemNoLock()
	if resp == nil {
		if s.isBackfillTaskRunning {
			return nil
		}
		if s.pendingBackfill {
			// a second pass was earmarked after the scan already finished
			s.pendingBackfill = false
			s.dropCursorNoLock()
			s.scheduleBackfillNoLock(true)
			return nil
		}
		// the scan is done and the queue has drained; the allowance starts
		// fresh for any later pass
		atomic.StoreUint32(&s.bufferedBackfill.bytes, 0)
		atomic.StoreUint32(&s.bufferedBackfill.items, 0)
		s.transitionStateNoLock(base.StreamInMemory)
		s.notifier.scheduleCheckpointProcessor(s)
		return s.inMemoryPhase()
	}
	if m, ok := resp.(*base.MutationResponse); ok {
		// a demotion can leave memory phase items ahead of the scan's own
		// output, so the allowance is paid back with a floor of zero
		if atomic.LoadUint32(&s.bufferedBackfill.items) > 0 {
			atomic.AddUint32(&s.bufferedBackfill.items, ^uint32(0))
		}
		if bytes := atomic.LoadUint32(&s.bufferedBackfill.bytes); bytes >= m.Size() {
			atomic.AddUint32(&s.bufferedBackfill.bytes, ^(m.Size() - 1))
		} else if bytes > 0 {
			atomic.StoreUint32(&s.bufferedBackfill.bytes, 0)
		}
		atomic.AddUint64(&s.backfillItems.sent, 1)
	}
	return resp
}

func (s *ActiveStream) inMemoryPhase() base.DcpResponse {
	if s.readyQ.IsEmpty() {
		if atomic.LoadUint64(&s.lastSentSeqno) >= s.seqRange.EndSeqno {
			s.endStreamNoLock(base.EndStreamOK)
			return s.nextQueuedItemNoLock()
		}
		if s.ident.IsTakeover() &&
			atomic.LoadUint64(&s.lastSentSeqno) >= atomic.LoadUint64(&s.curChkSeqno) &&
			atomic.LoadUint32(&s.chkptItemsExtractionInProgress) == 0 {
			// all available data has been sent; begin the handoff
			s.transitionStateNoLock(base.StreamTakeoverSend)
			s.takeoverStart = time.Now()
			return s.takeoverSendPhase()
		}
		s.notifier.scheduleCheckpointProcessor(s)
		return nil
	}
	resp := s.nextQueuedItemNoLock()
	if _, ok := resp.(*base.MutationResponse); ok {
		atomic.AddUint64(&s.itemsFromMemoryPhase, 1)
	}
	return resp
}

func (s *ActiveStream) takeoverSendPhase() base.DcpResponse {
	if !s.readyQ.IsEmpty() {
		return s.nextQueuedItemNoLock()
	}
	if atomic.LoadInt32(&s.waitForSnapshot) != 0 {
		// the consumer still owes acks for ack-required snapshots
		return nil
	}
	if !s.takeoverStateSent {
		s.takeoverStateSent = true
		s.transitionStateNoLock(base.StreamTakeoverWait)
		return &base.SetVBucketState{
			Vbno:   s.ident.Vbno,
			Opaque: s.ident.Opaque,
			State:  s.takeoverState,
		}
	}
	return nil
}

func (s *ActiveStream) takeoverWaitPhase() base.DcpResponse {
	if !s.takeoverStart.IsZero() &&
		time.Since(s.takeoverStart) > s.ctx.Settings.TakeoverSendMaxTime {
		s.logger.Warnf("%v: takeover ack not received within %v; abandoning handoff",
			s.ident, s.ctx.Settings.TakeoverSendMaxTime)
		s.endStreamNoLock(base.EndStreamDisconnected)
	}
	return s.nextQueuedItemNoLock()
}

func (s *ActiveStream) deadPhase() base.DcpResponse {
	return s.nextQueuedItemNoLock()
}

func (s *ActiveStream) nextQueuedItemNoLock() base.DcpResponse {
	resp := s.popFromReadyNoLock()
	if resp == nil {
		return nil
	}
	if m, ok := resp.(*base.MutationResponse); ok {
		atomic.StoreUint64(&s.lastSentSeqno, m.BySeqno())
	}
	if marker, ok := resp.(*base.SnapshotMarker); ok {
		atomic.StoreUint64(&s.lastSentSnapEndSeqno, marker.EndSeqno)
	}
	return resp
}

// scheduleBackfillNoLock decides whether the stream needs a disk scan to
// cover [lastReadSeqno+1, start of resident data) and either schedules one
// or moves straight to the in-memory phase. reschedule is set when a
// previous scan has already run on this stream (second backfill pass, or a
// slow-stream demotion).
func (s *ActiveStream) scheduleBackfillNoLock(reschedule bool) {
	if s.isBackfillTaskRunning {
		s.pendingBackfill = true
		return
	}

	lastRead := atomic.LoadUint64(&s.lastReadSeqno)

	if s.cursor == nil {
		cursorName := s.ctx.nextCursorName(s.ident.Name, s.ident.Vbno)
		cursor, curChkSeqno, err := s.ctx.CheckpointLog.RegisterCursor(s.ident.Vbno, cursorName, lastRead)
		if err != nil {
			s.logger.Errorf("%v: failed to register cursor: %v", s.ident,
				errors.Wrapf(err, "vb %v from seqno %v", s.ident.Vbno, lastRead))
			s.endStreamNoLock(base.EndStreamStateChanged)
			return
		}
		s.cursor = cursor
		atomic.StoreUint64(&s.curChkSeqno, curChkSeqno)
	}

	curChkSeqno := atomic.LoadUint64(&s.curChkSeqno)
	backfillStart := lastRead + 1
	backfillEnd := s.seqRange.EndSeqno
	if curChkSeqno > 0 && curChkSeqno-1 < backfillEnd {
		backfillEnd = curChkSeqno - 1
	}

	if backfillStart < curChkSeqno && backfillStart <= backfillEnd {
		s.logger.Infof("%v: scheduling backfill for seqnos %v..%v (reschedule=%v)",
			s.ident, backfillStart, backfillEnd, reschedule)
		err := s.ctx.BackfillSource.Scan(s.ident.Vbno, backfillStart, backfillEnd, s)
		if err != nil {
			s.logger.Errorf("%v: failed to schedule backfill: %v", s.ident, err)
			s.endStreamNoLock(base.EndStreamStateChanged)
			return
		}
		s.isBackfillTaskRunning = true
		if s.state == base.StreamPending || s.state == base.StreamInMemory {
			s.transitionStateNoLock(base.StreamBackfilling)
		}
	} else {
		if s.state == base.StreamPending {
			s.transitionStateNoLock(base.StreamInMemory)
		} else if s.state == base.StreamBackfilling {
			s.transitionStateNoLock(base.StreamInMemory)
		}
		s.notifier.scheduleCheckpointProcessor(s)
	}
}

// IncrBackfillRemaining is part of the BackfillHandler contract; called by
// the scanner with its item count estimate before delivery begins.
func (s *ActiveStream) IncrBackfillRemaining(by uint64) {
	atomic.AddUint64(&s.backfillRemaining, by)
}

// MarkDiskSnapshot opens the disk snapshot window. Every item the scan
// delivers afterwards belongs to that snapshot and is emitted as one
// uninterrupted unit.
func (s *ActiveStream) MarkDiskSnapshot(startSeqno, endSeqno uint64) error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state != base.StreamBackfilling {
		return errors.Wrapf(base.ErrorStreamDead, "vb %v disk snapshot dropped, state is %v",
			s.ident.Vbno, s.state)
	}

	flags := base.MarkerFlagDisk | base.MarkerFlagChk
	if s.ident.IsTakeover() {
		flags |= base.MarkerFlagAck
		atomic.AddInt32(&s.waitForSnapshot, 1)
	}
	s.pushToReadyNoLock(&base.SnapshotMarker{
		StartSeqno: startSeqno,
		EndSeqno:   endSeqno,
		Vbno:       s.ident.Vbno,
		Opaque:     s.ident.Opaque,
		Flags:      flags,
	})
	s.firstMarkerSent = true
	s.notifier.notifyStreamReady(s.ident.Vbno)
	return nil
}

// BackfillReceived delivers one scanned item. It is idempotent to duplicate
// delivery of the same seqno and rejects items below the already advanced
// watermark. A false return asks the scanner to back off and redeliver once
// the buffered backfill allowance frees up.
func (s *ActiveStream) BackfillReceived(itm *base.Item, source base.BackfillSourceType) bool {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state != base.StreamBackfilling {
		// scan raced with a state change; swallow the item
		return true
	}
	if itm.Seqno <= atomic.LoadUint64(&s.lastReadSeqno) {
		return true
	}

	m := &base.MutationResponse{Item: itm, Opaque: s.ident.Opaque}
	if atomic.LoadUint32(&s.bufferedBackfill.bytes)+m.Size() > s.ctx.Settings.BackfillBufferBytes ||
		atomic.LoadUint32(&s.bufferedBackfill.items)+1 > s.ctx.Settings.BackfillBufferItems {
		return false
	}

	s.pushToReadyNoLock(m)
	atomic.AddUint32(&s.bufferedBackfill.bytes, m.Size())
	atomic.AddUint32(&s.bufferedBackfill.items, 1)
	atomic.StoreUint64(&s.lastReadSeqno, itm.Seqno)
	if remaining := atomic.LoadUint64(&s.backfillRemaining); remaining > 0 {
		atomic.AddUint64(&s.backfillRemaining, ^uint64(0))
	}
	switch source {
	case base.BackfillFromDisk:
		atomic.AddUint64(&s.backfillItems.disk, 1)
	case base.BackfillFromMemory:
		atomic.AddUint64(&s.backfillItems.memory, 1)
	}
	s.notifier.notifyStreamReady(s.ident.Vbno)
	return true
}

// CompleteBackfill is the scanner's exactly-once completion signal. If a
// second pass was requested mid-scan the stream stays in Backfilling and the
// next scan is scheduled immediately. Otherwise the stream remains in
// Backfilling until the ready queue drains through backfillPhase, which
// makes the InMemory transition; moving earlier would let queued backfill
// items escape the buffered allowance accounting.
func (s *ActiveStream) CompleteBackfill() {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state != base.StreamBackfilling {
		return
	}
	s.isBackfillTaskRunning = false

	if s.pendingBackfill {
		s.pendingBackfill = false
		s.dropCursorNoLock()
		s.scheduleBackfillNoLock(true)
		return
	}

	atomic.StoreUint64(&s.backfillRemaining, 0)
	lastRead := atomic.LoadUint64(&s.lastReadSeqno)
	s.logger.Infof("%v: backfill complete, last seqno read %v", s.ident, lastRead)

	if s.readyQ.IsEmpty() {
		if lastRead >= s.seqRange.EndSeqno {
			s.endStreamNoLock(base.EndStreamOK)
		} else {
			s.transitionStateNoLock(base.StreamInMemory)
			s.notifier.scheduleCheckpointProcessor(s)
		}
	}
	s.notifier.notifyStreamReady(s.ident.Vbno)
}

// NextCheckpointItemTask runs on the checkpoint processor task. It pulls the
// outstanding items behind the stream's cursor and converts them into ready
// queue entries.
func (s *ActiveStream) NextCheckpointItemTask() {
	s.stateLock.Lock()
	if s.cursor == nil || (s.state != base.StreamInMemory && s.state != base.StreamTakeoverSend) {
		s.stateLock.Unlock()
		return
	}
	cursor := s.cursor
	atomic.StoreUint32(&s.chkptItemsExtractionInProgress, 1)
	s.stateLock.Unlock()

	items, err := s.ctx.CheckpointLog.GetOutstandingItems(cursor)
	if err != nil {
		atomic.StoreUint32(&s.chkptItemsExtractionInProgress, 0)
		s.logger.Errorf("%v: failed to get outstanding items: %v", s.ident, err)
		s.SetDead(base.EndStreamStateChanged)
		return
	}

	s.processItems(items)
	atomic.StoreUint32(&s.chkptItemsExtractionInProgress, 0)
}

// processItems converts checkpoint entries into snapshots on the ready
// queue, preserving seqno order and never interleaving items of two
// snapshots without a marker in between.
func (s *ActiveStream) processItems(items []*base.CheckpointItem) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state != base.StreamInMemory && s.state != base.StreamTakeoverSend {
		return
	}

	var batch []*base.MutationResponse
	var snapEnd uint64
	pushed := false

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		s.pushSnapshotNoLock(batch, snapEnd)
		batch = nil
		pushed = true
	}

	for _, chkItem := range items {
		switch chkItem.Op {
		case base.CheckpointOpStart:
			flushBatch()
			snapEnd = chkItem.SnapEnd
		case base.CheckpointOpEnd:
			flushBatch()
		case base.CheckpointOpMutation:
			itm := chkItem.Item
			if itm == nil || itm.Seqno <= atomic.LoadUint64(&s.lastReadSeqno) {
				continue
			}
			batch = append(batch, &base.MutationResponse{Item: itm, Opaque: s.ident.Opaque})
			atomic.StoreUint64(&s.lastReadSeqno, itm.Seqno)
			if itm.Seqno > atomic.LoadUint64(&s.curChkSeqno) {
				atomic.StoreUint64(&s.curChkSeqno, itm.Seqno)
			}
		}
	}
	flushBatch()

	if atomic.LoadUint64(&s.lastReadSeqno) >= s.seqRange.EndSeqno && s.state == base.StreamInMemory {
		s.endStreamNoLock(base.EndStreamOK)
		pushed = true
	}
	if pushed {
		s.notifier.notifyStreamReady(s.ident.Vbno)
	}
}

// pushSnapshotNoLock emits one SnapshotMarker followed by its mutations.
func (s *ActiveStream) pushSnapshotNoLock(batch []*base.MutationResponse, snapEnd uint64) {
	start := batch[0].BySeqno()
	end := batch[len(batch)-1].BySeqno()
	if !s.firstMarkerSent && s.seqRange.SnapStartSeqno < start {
		// stitch the negotiated snapshot range onto the first marker so the
		// consumer's window covers the resume point
		start = s.seqRange.SnapStartSeqno
	}
	if snapEnd > end {
		end = snapEnd
	}

	flags := base.MarkerFlagMemory | base.MarkerFlagChk
	if s.ident.IsTakeover() {
		flags |= base.MarkerFlagAck
		atomic.AddInt32(&s.waitForSnapshot, 1)
	}
	s.pushToReadyNoLock(&base.SnapshotMarker{
		StartSeqno: start,
		EndSeqno:   end,
		Vbno:       s.ident.Vbno,
		Opaque:     s.ident.Opaque,
		Flags:      flags,
	})
	s.firstMarkerSent = true
	for _, m := range batch {
		s.pushToReadyNoLock(m)
	}
}

// NotifySeqnoAvailable is the checkpoint log's wakeup signal
func (s *ActiveStream) NotifySeqnoAvailable(seqno uint64) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state == base.StreamDead {
		return
	}
	if s.state == base.StreamInMemory || s.state == base.StreamTakeoverSend {
		s.notifier.scheduleCheckpointProcessor(s)
	}
	s.notifier.notifyStreamReady(s.ident.Vbno)
}

// SnapshotMarkerAckReceived accounts one consumer ack for an ack-required
// snapshot sent during takeover
func (s *ActiveStream) SnapshotMarkerAckReceived() {
	if atomic.LoadInt32(&s.waitForSnapshot) > 0 {
		atomic.AddInt32(&s.waitForSnapshot, -1)
		s.notifier.notifyStreamReady(s.ident.Vbno)
	}
}

// SetVBucketStateAckReceived completes the takeover handshake
func (s *ActiveStream) SetVBucketStateAckReceived() {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state != base.StreamTakeoverWait {
		s.logger.Warnf("%v: unexpected setvbucketstate ack in state %v", s.ident, s.state)
		return
	}
	s.endStreamNoLock(base.EndStreamOK)
	s.notifier.notifyStreamReady(s.ident.Vbno)
}

// HandleSlowStream is the backpressure response for a stream whose ready
// queue has grown disproportionately: an InMemory stream is demoted back to
// Backfilling so it re-sources from disk instead of holding buffered state.
// A Backfilling stream simply earmarks a second pass. lastReadSeqno is never
// rewound.
func (s *ActiveStream) HandleSlowStream() {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	switch s.state {
	case base.StreamInMemory:
		s.logger.Infof("%v: handling slow stream, ready queue memory %v", s.ident, s.readyQ.Memory())
		s.dropCursorNoLock()
		s.transitionStateNoLock(base.StreamBackfilling)
		s.scheduleBackfillNoLock(true)
	case base.StreamBackfilling:
		s.pendingBackfill = true
	default:
		// nothing to shed in other states
	}
}

// SetDead tears the stream down; safe to call repeatedly from any goroutine
func (s *ActiveStream) SetDead(status base.EndStreamStatus) uint32 {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	s.endStreamNoLock(status)
	return 0
}

// endStreamNoLock queues the StreamEnd message, releases the cursor and
// makes the Dead transition
func (s *ActiveStream) endStreamNoLock(reason base.EndStreamStatus) {
	if s.state == base.StreamDead {
		return
	}
	s.dropCursorNoLock()
	s.pushToReadyNoLock(&base.StreamEndResponse{
		Vbno:   s.ident.Vbno,
		Opaque: s.ident.Opaque,
		Reason: reason,
	})
	s.transitionStateNoLock(base.StreamDead)
	atomic.StoreUint32(&s.bufferedBackfill.bytes, 0)
	atomic.StoreUint32(&s.bufferedBackfill.items, 0)
	s.logger.Infof("%v: stream ending. %v", s.ident, reason)
	s.notifier.notifyStreamReady(s.ident.Vbno)
}

func (s *ActiveStream) dropCursorNoLock() {
	if s.cursor == nil {
		return
	}
	if err := s.ctx.CheckpointLog.DeregisterCursor(s.cursor); err != nil {
		s.logger.Warnf("%v: failed to deregister cursor %v: %v", s.ident, s.cursor.Name(), err)
	}
	s.cursor = nil
}

// GetLastReadSeqno is lock free, for stats
func (s *ActiveStream) GetLastReadSeqno() uint64 {
	return atomic.LoadUint64(&s.lastReadSeqno)
}

// GetLastSentSeqno is lock free, for stats
func (s *ActiveStream) GetLastSentSeqno() uint64 {
	return atomic.LoadUint64(&s.lastSentSeqno)
}

// GetCurChkSeqno is lock free, for stats
func (s *ActiveStream) GetCurChkSeqno() uint64 {
	return atomic.LoadUint64(&s.curChkSeqno)
}

// GetBackfillRemaining is lock free, for stats
func (s *ActiveStream) GetBackfillRemaining() uint64 {
	return atomic.LoadUint64(&s.backfillRemaining)
}

// GetItemsRemaining is a count of items outstanding to be sent for this
// stream's vbucket
func (s *ActiveStream) GetItemsRemaining() uint64 {
	return atomic.LoadUint64(&s.backfillRemaining) + s.readyQ.NonMetaItems()
}

// IsSlow reports whether this stream's queued bytes exceed the configured
// fraction of the replication memory quota
func (s *ActiveStream) IsSlow() bool {
	threshold := uint64(s.ctx.Settings.SlowStreamBacklogRatio * float64(s.ctx.Settings.ReplicationMemoryQuota))
	return s.readyQ.Memory() > threshold
}

// StatsMap returns a point-in-time snapshot of the stream's counters
func (s *ActiveStream) StatsMap() map[string]interface{} {
	statsMap := make(map[string]interface{})
	statsMap["vbno"] = s.ident.Vbno
	statsMap["state"] = s.GetState().String()
	statsMap["last_read_seqno"] = s.GetLastReadSeqno()
	statsMap["last_sent_seqno"] = s.GetLastSentSeqno()
	statsMap["cur_chk_seqno"] = s.GetCurChkSeqno()
	statsMap["backfill_remaining"] = s.GetBackfillRemaining()
	statsMap["backfill_disk_items"] = atomic.LoadUint64(&s.backfillItems.disk)
	statsMap["backfill_memory_items"] = atomic.LoadUint64(&s.backfillItems.memory)
	statsMap["backfill_sent_items"] = atomic.LoadUint64(&s.backfillItems.sent)
	statsMap["memory_phase_items"] = atomic.LoadUint64(&s.itemsFromMemoryPhase)
	statsMap["ready_queue_memory"] = s.GetReadyQueueMemory()
	return statsMap
}

var _ Stream = (*ActiveStream)(nil)
var _ service_def.BackfillHandler = (*ActiveStream)(nil)
