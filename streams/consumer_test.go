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
	"testing"

	"github.com/couchbase/godcp/base"
	"github.com/couchbase/godcp/log"
	"github.com/couchbase/godcp/service_def/mocks"
	mc "github.com/couchbase/gomemcached"
	mcc "github.com/couchbase/gomemcached/client"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	mock "github.com/stretchr/testify/mock"
)

func setupConsumerBoilerPlate() (*mocks.KVEngine, *DcpConsumer, *StreamContext) {
	engine := &mocks.KVEngine{}
	scheduler := &mocks.Scheduler{}
	ctx := NewStreamContext(base.DefaultDcpSettings(), log.DefaultLoggerContext,
		&mocks.CheckpointLog{}, &mocks.BackfillSource{}, scheduler)
	consumer := NewDcpConsumer(ctx, engine, "replica")
	return engine, consumer, ctx
}

func markerEvent(vbno uint16, opaque uint16, start, end uint64, flags uint32) *mcc.UprEvent {
	return &mcc.UprEvent{
		Opcode:       mc.UPR_SNAPSHOT,
		VBucket:      vbno,
		Opaque:       opaque,
		SnapstartSeq: start,
		SnapendSeq:   end,
		SnapshotType: flags,
	}
}

func mutationEvent(vbno uint16, opaque uint16, seqno uint64) *mcc.UprEvent {
	return &mcc.UprEvent{
		Opcode:  mc.UPR_MUTATION,
		VBucket: vbno,
		Opaque:  opaque,
		Seqno:   seqno,
		Key:     []byte(fmt.Sprintf("key_%v", seqno)),
		Value:   []byte("value"),
	}
}

func TestConsumerStreamLifecycle(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestConsumerStreamLifecycle =================")
	_, consumer, _ := setupConsumerBoilerPlate()

	assert.Nil(consumer.AddStream(11, 200, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	assert.Equal(base.ErrorStreamExists, consumer.AddStream(11, 201, 0, 0, base.DcpMaxSeqno, 0, 0, 0))

	assert.Equal(base.ErrorStreamNotFound, consumer.StreamAccepted(12, 200, mc.SUCCESS))
	assert.Equal(base.ErrorStreamNotFound, consumer.StreamAccepted(11, 999, mc.SUCCESS))
	assert.Nil(consumer.StreamAccepted(11, 200, mc.SUCCESS))
	assert.Equal(base.StreamReading, consumer.findStream(11).GetState())

	assert.Nil(consumer.CloseStream(11))
	assert.Equal(base.ErrorStreamNotFound, consumer.CloseStream(12))

	// the dead entry can be replaced by a fresh open
	assert.Nil(consumer.AddStream(11, 202, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	fmt.Println("============== Test case end: TestConsumerStreamLifecycle =================")
}

func TestConsumerMessageFlow(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestConsumerMessageFlow =================")
	engine, consumer, _ := setupConsumerBoilerPlate()
	engine.On("SetWithMeta", mock.Anything).Return(nil)

	assert.Nil(consumer.AddStream(11, 200, 0, 9, base.DcpMaxSeqno, 0, 9, 9))
	assert.Nil(consumer.StreamAccepted(11, 200, mc.SUCCESS))

	assert.Nil(consumer.MessageReceived(markerEvent(11, 200, 10, 12, base.MarkerFlagMemory)))
	for seqno := uint64(10); seqno <= 12; seqno++ {
		assert.Nil(consumer.MessageReceived(mutationEvent(11, 200, seqno)))
	}
	// events for an unknown vbucket are refused at the connection boundary
	assert.Equal(base.ErrorStreamNotFound, consumer.MessageReceived(mutationEvent(12, 200, 1)))

	assert.False(consumer.ProcessBufferedMessages())
	engine.AssertNumberOfCalls(t, "SetWithMeta", 3)
	assert.Equal(uint64(12), consumer.findStream(11).GetLastSeqno())

	docsReceived := consumer.Registry().Get(base.StatsDocsReceived).(metrics.Counter)
	assert.Equal(int64(3), docsReceived.Count())
	fmt.Println("============== Test case end: TestConsumerMessageFlow =================")
}

func TestConsumerBufferAck(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestConsumerBufferAck =================")
	engine, consumer, ctx := setupConsumerBoilerPlate()
	engine.On("SetWithMeta", mock.Anything).Return(nil)
	// tiny window so a single batch crosses the ack threshold
	ctx.Settings.ConsumerBufferBytes = 200

	var ackedBytes []uint32
	consumer.SetAckCallback(func(bytes uint32) {
		ackedBytes = append(ackedBytes, bytes)
	})

	assert.Nil(consumer.AddStream(11, 200, 0, 9, base.DcpMaxSeqno, 0, 9, 9))
	assert.Nil(consumer.StreamAccepted(11, 200, mc.SUCCESS))

	assert.Nil(consumer.MessageReceived(markerEvent(11, 200, 10, 11, base.MarkerFlagMemory)))
	assert.Nil(consumer.MessageReceived(mutationEvent(11, 200, 10)))
	assert.Nil(consumer.MessageReceived(mutationEvent(11, 200, 11)))
	assert.Zero(len(ackedBytes))

	assert.False(consumer.ProcessBufferedMessages())
	// the drained bytes came back as one ack and the debt was reset
	assert.Equal(1, len(ackedBytes))
	assert.NotZero(ackedBytes[0])
	assert.Zero(consumer.UnackedBytes())
	fmt.Println("============== Test case end: TestConsumerBufferAck =================")
}

func TestConsumerTempFailRetries(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestConsumerTempFailRetries =================")
	engine, consumer, _ := setupConsumerBoilerPlate()
	engine.On("SetWithMeta", mock.Anything).Return(base.ErrorTempFail).Once()
	engine.On("SetWithMeta", mock.Anything).Return(nil)

	assert.Nil(consumer.AddStream(11, 200, 0, 9, base.DcpMaxSeqno, 0, 9, 9))
	assert.Nil(consumer.StreamAccepted(11, 200, mc.SUCCESS))
	assert.Nil(consumer.MessageReceived(markerEvent(11, 200, 10, 10, base.MarkerFlagMemory)))
	assert.Nil(consumer.MessageReceived(mutationEvent(11, 200, 10)))

	// backpressure from the engine keeps the stream on the work list
	assert.True(consumer.ProcessBufferedMessages())
	assert.False(consumer.ProcessBufferedMessages())
	assert.Equal(uint64(10), consumer.findStream(11).GetLastSeqno())
	fmt.Println("============== Test case end: TestConsumerTempFailRetries =================")
}

func TestConsumerPoisonedStream(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestConsumerPoisonedStream =================")
	_, consumer, _ := setupConsumerBoilerPlate()

	assert.Nil(consumer.AddStream(11, 200, 0, 9, base.DcpMaxSeqno, 0, 9, 9))
	assert.Nil(consumer.StreamAccepted(11, 200, mc.SUCCESS))

	// a malformed snapshot poisons this vbucket's stream only
	assert.NotNil(consumer.MessageReceived(markerEvent(11, 200, 30, 20, base.MarkerFlagMemory)))
	assert.Equal(base.StreamDead, consumer.findStream(11).GetState())
	fmt.Println("============== Test case end: TestConsumerPoisonedStream =================")
}

func TestConsumerTakeoverAckDrain(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestConsumerTakeoverAckDrain =================")
	engine, consumer, _ := setupConsumerBoilerPlate()
	engine.On("SetWithMeta", mock.Anything).Return(nil)
	engine.On("SetVBucketState", uint16(11), base.VbActive).Return(nil)

	assert.Nil(consumer.AddStream(11, 200, base.DcpStreamAddFlagTakeover, 9, base.DcpMaxSeqno, 0, 9, 9))
	assert.Nil(consumer.StreamAccepted(11, 200, mc.SUCCESS))
	assert.Nil(consumer.GetNextItem())

	assert.Nil(consumer.MessageReceived(markerEvent(11, 200, 10, 10,
		base.MarkerFlagDisk|base.MarkerFlagAck)))
	assert.Nil(consumer.MessageReceived(mutationEvent(11, 200, 10)))
	stateEvent := &mcc.UprEvent{Opcode: mc.SET_VBUCKET, VBucket: 11, Opaque: 200,
		Flags: uint32(base.VbActive)}
	assert.Nil(consumer.MessageReceived(stateEvent))

	assert.False(consumer.ProcessBufferedMessages())

	_, ok := consumer.GetNextItem().(*base.SnapshotMarkerAck)
	assert.True(ok)
	_, ok = consumer.GetNextItem().(*base.SetVBucketStateAck)
	assert.True(ok)
	assert.Nil(consumer.GetNextItem())
	fmt.Println("============== Test case end: TestConsumerTakeoverAckDrain =================")
}
