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
	mc "github.com/couchbase/gomemcached"
	mcc "github.com/couchbase/gomemcached/client"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
)

// DcpConsumer owns the replica side of one connection: the passive stream
// per vbucket, the buffer ack accounting towards the producer, and the
// fan-in of control acks the network layer sends back.
type DcpConsumer struct {
	name string

	ctx    *StreamContext
	engine service_def.KVEngine
	logger *log.CommonLogger

	streamsLock sync.RWMutex
	streams     map[uint16]*PassiveStream

	// bytes applied or discarded since the last buffer ack was sent
	unackedBytes uint32
	// sends a buffer ack of the given size to the producer; registered by
	// the network layer
	ackLock sync.RWMutex
	ackFn   func(bytes uint32)

	notifyLock sync.RWMutex
	notifyFn   func(vbno uint16)

	registry metrics.Registry

	closedLock sync.Mutex
	closed     bool
}

func NewDcpConsumer(ctx *StreamContext, engine service_def.KVEngine, namePrefix string) *DcpConsumer {
	c := &DcpConsumer{
		name:     fmt.Sprintf("%v:%v", namePrefix, uuid.New().String()),
		ctx:      ctx,
		engine:   engine,
		logger:   log.NewLogger("DcpConsumer", ctx.LoggerContext),
		streams:  make(map[uint16]*PassiveStream),
		registry: metrics.NewRegistry(),
	}
	c.registry.Register(base.StatsDocsReceived, metrics.NewCounter())
	c.registry.Register(base.StatsDataReceived, metrics.NewCounter())
	return c
}

func (c *DcpConsumer) Name() string {
	return c.name
}

// AddStream registers a passive stream for the vbucket. The stream sits in
// Pending until the producer answers and StreamAccepted is called.
func (c *DcpConsumer) AddStream(vbno uint16, opaque uint32, flags uint32,
	startSeqno, endSeqno, vbUuid, snapStartSeqno, snapEndSeqno uint64) error {

	ident := &base.StreamIdentity{
		Name:   c.name,
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

	c.streamsLock.Lock()
	defer c.streamsLock.Unlock()
	if existing, ok := c.streams[vbno]; ok {
		if existing.IsActive() {
			return base.ErrorStreamExists
		}
		delete(c.streams, vbno)
	}
	c.streams[vbno] = NewPassiveStream(c.ctx, c, c.engine, ident, seqRange)
	c.logger.Infof("%v: passive stream added for vb %v, %v", c.name, vbno, seqRange)
	return nil
}

// StreamAccepted completes the stream-open handshake with the producer's
// response status
func (c *DcpConsumer) StreamAccepted(vbno uint16, opaque uint32, status mc.Status) error {
	s := c.findStream(vbno)
	if s == nil || s.Identity().Opaque != opaque {
		return base.ErrorStreamNotFound
	}
	s.AcceptStream(status)
	return nil
}

// CloseStream ends the passive stream for the vbucket. Bytes still sitting
// in its buffer are credited towards the next buffer ack so the producer's
// flow control window does not leak.
func (c *DcpConsumer) CloseStream(vbno uint16) error {
	s := c.findStream(vbno)
	if s == nil {
		return base.ErrorStreamNotFound
	}
	freed := s.SetDead(base.EndStreamClosed)
	if freed > 0 {
		c.creditUnackedBytes(freed)
	}
	return nil
}

// MessageReceived is the wire ingestion path. The event is converted and
// routed to the owning stream's buffer; the stream lock is never taken here
// so decoding keeps pace with the socket.
func (c *DcpConsumer) MessageReceived(event *mcc.UprEvent) error {
	resp, err := base.ResponseFromUprEvent(event)
	if err != nil {
		return err
	}
	s := c.findStream(event.VBucket)
	if s == nil {
		return base.ErrorStreamNotFound
	}
	if err = s.MessageReceived(resp); err != nil {
		if errors.Cause(err) == base.ErrorInvalidInput {
			// a malformed or out-of-order message poisons the stream, not
			// the connection
			c.logger.Errorf("%v: vb %v stream poisoned: %v", c.name, event.VBucket, err)
			freed := s.SetDead(base.EndStreamClosed)
			if freed > 0 {
				c.creditUnackedBytes(freed)
			}
		}
		return err
	}

	if _, isMutation := resp.(*base.MutationResponse); isMutation {
		c.registry.Get(base.StatsDocsReceived).(metrics.Counter).Inc(1)
		c.registry.Get(base.StatsDataReceived).(metrics.Counter).Inc(int64(resp.Size()))
	}
	return nil
}

// ProcessBufferedMessages drains every stream's receive buffer into the
// engine, up to the configured batch size per stream. It returns true if
// any stream still has work, so the caller knows to come back without
// waiting for the next socket read.
func (c *DcpConsumer) ProcessBufferedMessages() bool {
	c.streamsLock.RLock()
	streams := make([]*PassiveStream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.streamsLock.RUnlock()

	moreToProcess := false
	for _, s := range streams {
		processedBytes, result := s.ProcessBufferedMessages(c.ctx.Settings.ConsumerBatchSize)
		if processedBytes > 0 {
			c.creditUnackedBytes(processedBytes)
		}
		if result == base.MoreToProcess || result == base.CannotProcess {
			// CannotProcess is a temporary engine condition; keep the
			// stream on the work list for the next pass
			moreToProcess = true
		}
	}
	return moreToProcess
}

// GetNextItem returns the next control ack (snapshot ack, vbucket state
// ack) owed to the producer, nil when there is none
func (c *DcpConsumer) GetNextItem() base.DcpResponse {
	c.streamsLock.RLock()
	defer c.streamsLock.RUnlock()
	for _, s := range c.streams {
		if resp := s.Next(); resp != nil {
			return resp
		}
	}
	return nil
}

// SetAckCallback registers the function that sends buffer acks on the wire
func (c *DcpConsumer) SetAckCallback(fn func(bytes uint32)) {
	c.ackLock.Lock()
	defer c.ackLock.Unlock()
	c.ackFn = fn
}

// SetNotifyCallback registers the network layer's wake callback. The
// callback runs inline from stream entry points with the stream lock held;
// it must hand off to a send goroutine rather than call back into the
// consumer synchronously.
func (c *DcpConsumer) SetNotifyCallback(fn func(vbno uint16)) {
	c.notifyLock.Lock()
	defer c.notifyLock.Unlock()
	c.notifyFn = fn
}

// creditUnackedBytes records drained buffer bytes and emits a buffer ack
// once the accumulated amount crosses the threshold fraction of the
// per-stream buffer size
func (c *DcpConsumer) creditUnackedBytes(bytes uint32) {
	total := atomic.AddUint32(&c.unackedBytes, bytes)
	threshold := uint32(float64(c.ctx.Settings.ConsumerBufferBytes) * c.ctx.Settings.BufferAckThreshold)
	if total < threshold {
		return
	}
	if !atomic.CompareAndSwapUint32(&c.unackedBytes, total, 0) {
		// another goroutine crossed the threshold concurrently; it owns
		// this ack
		return
	}
	c.ackLock.RLock()
	fn := c.ackFn
	c.ackLock.RUnlock()
	if fn != nil {
		fn(total)
	}
}

// UnackedBytes is the flow control debt not yet acked to the producer
func (c *DcpConsumer) UnackedBytes() uint32 {
	return atomic.LoadUint32(&c.unackedBytes)
}

// CloseAllStreams ends every stream. Used on disconnect and on shutdown.
func (c *DcpConsumer) CloseAllStreams(status base.EndStreamStatus) {
	c.closedLock.Lock()
	if c.closed {
		c.closedLock.Unlock()
		return
	}
	c.closed = true
	c.closedLock.Unlock()

	c.streamsLock.RLock()
	streams := make([]*PassiveStream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.streamsLock.RUnlock()

	for _, s := range streams {
		s.SetDead(status)
	}
	c.logger.Infof("%v: closed %v streams. %v", c.name, len(streams), status)
}

// Registry exposes the per-connection metrics registry
func (c *DcpConsumer) Registry() metrics.Registry {
	return c.registry
}

func (c *DcpConsumer) PrintStatusSummary() {
	c.streamsLock.RLock()
	defer c.streamsLock.RUnlock()
	for _, s := range c.streams {
		c.logger.Infof("%v: %v", c.name, s.StatsMap())
	}
}

func (c *DcpConsumer) findStream(vbno uint16) *PassiveStream {
	c.streamsLock.RLock()
	defer c.streamsLock.RUnlock()
	return c.streams[vbno]
}

// notifyStreamReady wakes the network layer; part of the streamNotifier
// contract
func (c *DcpConsumer) notifyStreamReady(vbno uint16) {
	c.notifyLock.RLock()
	fn := c.notifyFn
	c.notifyLock.RUnlock()
	if fn != nil {
		fn(vbno)
	}
}

// scheduleCheckpointProcessor is part of the streamNotifier contract; only
// active streams use it
func (c *DcpConsumer) scheduleCheckpointProcessor(s *ActiveStream) {
}
