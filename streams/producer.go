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

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/log"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
)

// DcpProducer owns the producer side of one connection: the map of vbucket
// to stream, the shared checkpoint processor task, and the fan-in the
// network layer drains. A producer opened as a notifier creates
// NotifierStreams instead of ActiveStreams.
type DcpProducer struct {
	name       string
	isNotifier bool

	ctx    *StreamContext
	logger *log.CommonLogger

	// streamsLock orders before any individual stream's lock: lookup first,
	// then act on the stream
	streamsLock sync.RWMutex
	streams     map[uint16]Stream
	roundRobin  []uint16
	rrPos       int

	checkpointTask *CheckpointProcessorTask

	// wake callback registered by the network layer; invoked whenever some
	// stream has data for GetNextItem after having reported none
	notifyLock sync.RWMutex
	notifyFn   func(vbno uint16)

	registry metrics.Registry

	closedLock sync.Mutex
	closed     bool
}

func NewDcpProducer(ctx *StreamContext, namePrefix string, isNotifier bool) *DcpProducer {
	p := &DcpProducer{
		name:       fmt.Sprintf("%v:%v", namePrefix, uuid.New().String()),
		isNotifier: isNotifier,
		ctx:        ctx,
		logger:     log.NewLogger("DcpProducer", ctx.LoggerContext),
		streams:    make(map[uint16]Stream),
		registry:   metrics.NewRegistry(),
	}
	p.registry.Register(base.StatsDocsSent, metrics.NewCounter())
	p.registry.Register(base.StatsDataSent, metrics.NewCounter())
	p.registry.Register(base.StatsReadyQueueSize, metrics.NewHistogram(metrics.NewUniformSample(1024)))

	p.checkpointTask = NewCheckpointProcessorTask(p, ctx.Settings.SnapshotMarkerYieldLimit,
		ctx.Scheduler, ctx.LoggerContext)
	if err := ctx.Scheduler.Schedule(p.checkpointTask); err != nil {
		p.logger.Errorf("%v: failed to schedule checkpoint processor task: %v", p.name, err)
	}
	return p
}

func (p *DcpProducer) Name() string {
	return p.name
}

// AddStream handles a stream-open negotiation. On success the new stream is
// registered and kicked into its initial phase.
func (p *DcpProducer) AddStream(vbno uint16, opaque uint32, flags uint32,
	startSeqno, endSeqno, vbUuid, snapStartSeqno, snapEndSeqno uint64) error {

	highSeqno, err := p.ctx.CheckpointLog.GetHighSeqno(vbno)
	if err != nil {
		return base.ErrorNotMyVbucket
	}
	if startSeqno > endSeqno || startSeqno > highSeqno {
		return base.ErrorErange
	}

	ident := &base.StreamIdentity{
		Name:   p.name,
		Vbno:   vbno,
		Opaque: opaque,
		Flags:  flags,
		VbUuid: vbUuid,
	}
	seqRange := &base.SequenceRange{
		StartSeqno:     startSeqno,
		EndSeqno:       endSeqno,
		SnapStartSeqno: snapStartSeqno,
		SnapEndSeqno:   snapEndSeqno,
	}

	p.streamsLock.Lock()
	if existing, ok := p.streams[vbno]; ok {
		if existing.IsActive() {
			p.streamsLock.Unlock()
			return base.ErrorStreamExists
		}
		delete(p.streams, vbno)
	}

	var s Stream
	if p.isNotifier {
		s = NewNotifierStream(p.ctx, p, ident, seqRange)
	} else {
		s = NewActiveStream(p.ctx, p, ident, seqRange)
	}
	p.streams[vbno] = s
	p.rebuildRoundRobinNoLock()
	p.streamsLock.Unlock()

	p.ctx.CheckpointLog.NotifyOnNewData(vbno, func(seqno uint64) {
		p.NotifySeqnoAvailable(vbno, seqno)
	})

	s.SetActive()
	p.logger.Infof("%v: stream added for vb %v, %v", p.name, vbno, seqRange)
	return nil
}

// CloseStream ends the stream for the vbucket. The stream stays registered
// until its queued StreamEnd has been pulled; a later AddStream for the same
// vbucket replaces the dead entry.
func (p *DcpProducer) CloseStream(vbno uint16) error {
	p.streamsLock.RLock()
	s, ok := p.streams[vbno]
	p.streamsLock.RUnlock()
	if !ok {
		return base.ErrorNotMyVbucket
	}
	s.SetDead(base.EndStreamClosed)
	return nil
}

// GetNextItem is the network layer's pull entry point. It asks each stream
// in turn, starting after the last one served so a busy vbucket cannot
// starve the rest. Returns nil when no stream has anything; a notify
// callback re-arms the caller.
func (p *DcpProducer) GetNextItem() base.DcpResponse {
	p.streamsLock.Lock()
	order := make([]uint16, len(p.roundRobin))
	start := p.rrPos
	for i := range p.roundRobin {
		order[i] = p.roundRobin[(start+i)%len(p.roundRobin)]
	}
	p.streamsLock.Unlock()

	for i, vbno := range order {
		p.streamsLock.RLock()
		s, ok := p.streams[vbno]
		p.streamsLock.RUnlock()
		if !ok {
			continue
		}
		resp := s.Next()
		if resp == nil {
			continue
		}

		p.streamsLock.Lock()
		if len(p.roundRobin) > 0 {
			p.rrPos = (start + i + 1) % len(p.roundRobin)
		}
		p.streamsLock.Unlock()

		if _, isMutation := resp.(*base.MutationResponse); isMutation {
			p.registry.Get(base.StatsDocsSent).(metrics.Counter).Inc(1)
			p.registry.Get(base.StatsDataSent).(metrics.Counter).Inc(int64(resp.Size()))
		}
		return resp
	}
	return nil
}

// IsValidStream reports whether the (opaque, vbno) pair identifies a live
// stream of this producer
func (p *DcpProducer) IsValidStream(opaque uint32, vbno uint16) bool {
	p.streamsLock.RLock()
	s, ok := p.streams[vbno]
	p.streamsLock.RUnlock()
	return ok && s.Identity().Opaque == opaque && s.IsActive()
}

// FindStreamByVbid resolves a vbucket to its active stream, nil for
// notifier producers and missing entries
func (p *DcpProducer) FindStreamByVbid(vbno uint16) *ActiveStream {
	p.streamsLock.RLock()
	defer p.streamsLock.RUnlock()
	if s, ok := p.streams[vbno]; ok {
		if as, isActive := s.(*ActiveStream); isActive {
			return as
		}
	}
	return nil
}

// NotifySeqnoAvailable routes a new-data signal from the checkpoint log to
// the owning stream
func (p *DcpProducer) NotifySeqnoAvailable(vbno uint16, seqno uint64) {
	p.streamsLock.RLock()
	s, ok := p.streams[vbno]
	p.streamsLock.RUnlock()
	if ok {
		s.NotifySeqnoAvailable(seqno)
	}
}

// SnapshotMarkerAckReceived routes a consumer snapshot ack during takeover
func (p *DcpProducer) SnapshotMarkerAckReceived(vbno uint16) {
	if s := p.FindStreamByVbid(vbno); s != nil {
		s.SnapshotMarkerAckReceived()
	}
}

// SetVBucketStateAckReceived routes the consumer's handoff ack
func (p *DcpProducer) SetVBucketStateAckReceived(vbno uint16) {
	if s := p.FindStreamByVbid(vbno); s != nil {
		s.SetVBucketStateAckReceived()
	}
}

// SetNotifyCallback registers the network layer's wake callback. The
// callback runs inline from stream entry points with the stream lock held;
// it must hand off to a send goroutine rather than call back into the
// producer synchronously.
func (p *DcpProducer) SetNotifyCallback(fn func(vbno uint16)) {
	p.notifyLock.Lock()
	defer p.notifyLock.Unlock()
	p.notifyFn = fn
}

// HandleSlowStreams demotes any stream whose ready queue has outgrown its
// share of the replication memory quota
func (p *DcpProducer) HandleSlowStreams() {
	for _, s := range p.activeStreams() {
		if s.IsSlow() {
			s.HandleSlowStream()
		}
	}
}

// CloseAllStreams ends every stream and retires the checkpoint task. Used
// on disconnect and on shutdown.
func (p *DcpProducer) CloseAllStreams(status base.EndStreamStatus) {
	p.closedLock.Lock()
	if p.closed {
		p.closedLock.Unlock()
		return
	}
	p.closed = true
	p.closedLock.Unlock()

	p.streamsLock.RLock()
	streams := make([]Stream, 0, len(p.streams))
	for _, s := range p.streams {
		streams = append(streams, s)
	}
	p.streamsLock.RUnlock()

	for _, s := range streams {
		s.SetDead(status)
	}
	p.checkpointTask.CancelTask()
	p.ctx.Scheduler.Cancel(p.checkpointTask)
	p.logger.Infof("%v: closed %v streams. %v", p.name, len(streams), status)
}

// Registry exposes the per-connection metrics registry
func (p *DcpProducer) Registry() metrics.Registry {
	return p.registry
}

// PrintStatusSummary logs one line per stream and samples queue sizes into
// the stats histogram
func (p *DcpProducer) PrintStatusSummary() {
	histogram := p.registry.Get(base.StatsReadyQueueSize).(metrics.Histogram)
	for _, s := range p.activeStreams() {
		histogram.Update(int64(s.GetReadyQueueMemory()))
		p.logger.Infof("%v: %v", p.name, s.StatsMap())
	}
}

func (p *DcpProducer) activeStreams() []*ActiveStream {
	p.streamsLock.RLock()
	defer p.streamsLock.RUnlock()
	out := make([]*ActiveStream, 0, len(p.streams))
	for _, s := range p.streams {
		if as, ok := s.(*ActiveStream); ok {
			out = append(out, as)
		}
	}
	return out
}

// notifyStreamReady wakes the network layer; part of the streamNotifier
// contract
func (p *DcpProducer) notifyStreamReady(vbno uint16) {
	p.notifyLock.RLock()
	fn := p.notifyFn
	p.notifyLock.RUnlock()
	if fn != nil {
		fn(vbno)
	}
}

// scheduleCheckpointProcessor queues the stream on the shared task; part of
// the streamNotifier contract
func (p *DcpProducer) scheduleCheckpointProcessor(s *ActiveStream) {
	p.checkpointTask.Schedule(s)
}

func (p *DcpProducer) rebuildRoundRobinNoLock() {
	p.roundRobin = p.roundRobin[:0]
	for vbno := range p.streams {
		p.roundRobin = append(p.roundRobin, vbno)
	}
	if p.rrPos >= len(p.roundRobin) {
		p.rrPos = 0
	}
}
