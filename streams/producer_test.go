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
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	mock "github.com/stretchr/testify/mock"
)

func setupProducerBoilerPlate(isNotifier bool) (*mocks.CheckpointLog, *mocks.BackfillSource,
	*mocks.Scheduler, *DcpProducer) {

	checkpointLog := &mocks.CheckpointLog{}
	backfillSource := &mocks.BackfillSource{}
	scheduler := &mocks.Scheduler{}
	scheduler.On("Schedule", mock.Anything).Return(nil)
	scheduler.On("Wakeup", mock.Anything)
	scheduler.On("Snooze", mock.Anything, mock.Anything)
	scheduler.On("Cancel", mock.Anything)

	ctx := NewStreamContext(base.DefaultDcpSettings(), log.DefaultLoggerContext,
		checkpointLog, backfillSource, scheduler)
	producer := NewDcpProducer(ctx, "replication", isNotifier)
	return checkpointLog, backfillSource, scheduler, producer
}

func setupInMemoryVb(checkpointLog *mocks.CheckpointLog, vbno uint16, seqnos []uint64) *mocks.CheckpointCursor {
	cursor := &mocks.CheckpointCursor{}
	// distinguish cursor mocks so testify's deep-equal argument matching
	// cannot alias one vbucket's handler chain onto another's
	cursor.On("Vbno").Return(vbno)
	checkpointLog.On("GetHighSeqno", vbno).Return(seqnos[len(seqnos)-1], nil)
	checkpointLog.On("RegisterCursor", vbno, mock.Anything, uint64(0)).Return(cursor, uint64(0), nil)
	checkpointLog.On("GetOutstandingItems", cursor).Return(
		memorySnapshot(vbno, seqnos, seqnos[len(seqnos)-1]), nil).Once()
	checkpointLog.On("GetOutstandingItems", cursor).Return([]*base.CheckpointItem{}, nil)
	checkpointLog.On("DeregisterCursor", cursor).Return(nil)
	checkpointLog.On("NotifyOnNewData", vbno, mock.Anything)
	return cursor
}

func TestProducerAddStreamValidation(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestProducerAddStreamValidation =================")
	checkpointLog, _, _, producer := setupProducerBoilerPlate(false)

	setupInMemoryVb(checkpointLog, 1, []uint64{1, 2, 3})
	checkpointLog.On("GetHighSeqno", uint16(2)).Return(uint64(0), base.ErrorNotMyVbucket)

	// start beyond the vbucket's high seqno
	assert.Equal(base.ErrorErange, producer.AddStream(1, 100, 0, 50, base.DcpMaxSeqno, 0, 50, 50))
	// start beyond end
	assert.Equal(base.ErrorErange, producer.AddStream(1, 100, 0, 3, 2, 0, 3, 3))
	// vbucket not owned here
	assert.Equal(base.ErrorNotMyVbucket, producer.AddStream(2, 100, 0, 0, base.DcpMaxSeqno, 0, 0, 0))

	assert.Nil(producer.AddStream(1, 100, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	assert.True(producer.IsValidStream(100, 1))
	assert.False(producer.IsValidStream(101, 1))

	// one live stream per vbucket per connection
	assert.Equal(base.ErrorStreamExists, producer.AddStream(1, 101, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	fmt.Println("============== Test case end: TestProducerAddStreamValidation =================")
}

func TestProducerFanIn(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestProducerFanIn =================")
	checkpointLog, _, _, producer := setupProducerBoilerPlate(false)

	setupInMemoryVb(checkpointLog, 1, []uint64{1, 2})
	setupInMemoryVb(checkpointLog, 2, []uint64{1, 2, 3})

	assert.Nil(producer.AddStream(1, 100, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	assert.Nil(producer.AddStream(2, 200, 0, 0, base.DcpMaxSeqno, 0, 0, 0))

	// drive the shared checkpoint task the way the scheduler would
	assert.True(producer.checkpointTask.Run())

	mutationsPerVb := make(map[uint16]int)
	for resp := producer.GetNextItem(); resp != nil; resp = producer.GetNextItem() {
		if m, ok := resp.(*base.MutationResponse); ok {
			mutationsPerVb[m.Item.Vbno]++
		}
	}
	assert.Equal(2, mutationsPerVb[1])
	assert.Equal(3, mutationsPerVb[2])

	docsSent := producer.Registry().Get(base.StatsDocsSent).(metrics.Counter)
	assert.Equal(int64(5), docsSent.Count())
	fmt.Println("============== Test case end: TestProducerFanIn =================")
}

func TestProducerCloseStream(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestProducerCloseStream =================")
	checkpointLog, _, _, producer := setupProducerBoilerPlate(false)

	setupInMemoryVb(checkpointLog, 3, []uint64{1})
	assert.Nil(producer.AddStream(3, 100, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	assert.Equal(base.ErrorNotMyVbucket, producer.CloseStream(4))

	assert.Nil(producer.CloseStream(3))
	assert.False(producer.IsValidStream(100, 3))

	end, ok := producer.GetNextItem().(*base.StreamEndResponse)
	assert.True(ok)
	assert.Equal(base.EndStreamClosed, end.Reason)

	// the dead entry is replaceable
	assert.Nil(producer.AddStream(3, 101, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	fmt.Println("============== Test case end: TestProducerCloseStream =================")
}

func TestProducerCloseAllStreams(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestProducerCloseAllStreams =================")
	checkpointLog, _, scheduler, producer := setupProducerBoilerPlate(false)

	setupInMemoryVb(checkpointLog, 1, []uint64{1})
	setupInMemoryVb(checkpointLog, 2, []uint64{1})
	assert.Nil(producer.AddStream(1, 100, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	assert.Nil(producer.AddStream(2, 200, 0, 0, base.DcpMaxSeqno, 0, 0, 0))

	producer.CloseAllStreams(base.EndStreamDisconnected)
	producer.CloseAllStreams(base.EndStreamDisconnected)

	assert.False(producer.IsValidStream(100, 1))
	assert.False(producer.IsValidStream(200, 2))
	scheduler.AssertNumberOfCalls(t, "Cancel", 1)
	assert.False(producer.checkpointTask.Run())
	fmt.Println("============== Test case end: TestProducerCloseAllStreams =================")
}

func TestProducerNotifyCallback(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestProducerNotifyCallback =================")
	checkpointLog, _, _, producer := setupProducerBoilerPlate(false)

	var notified []uint16
	producer.SetNotifyCallback(func(vbno uint16) {
		notified = append(notified, vbno)
	})

	setupInMemoryVb(checkpointLog, 5, []uint64{1})
	assert.Nil(producer.AddStream(5, 100, 0, 0, base.DcpMaxSeqno, 0, 0, 0))
	assert.True(producer.checkpointTask.Run())
	assert.Contains(notified, uint16(5))
	fmt.Println("============== Test case end: TestProducerNotifyCallback =================")
}

func TestProducerNotifierMode(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestProducerNotifierMode =================")
	checkpointLog, _, _, producer := setupProducerBoilerPlate(true)

	checkpointLog.On("GetHighSeqno", uint16(8)).Return(uint64(100), nil)
	checkpointLog.On("NotifyOnNewData", uint16(8), mock.Anything)

	assert.Nil(producer.AddStream(8, 100, 0, 100, base.DcpMaxSeqno, 0, 100, 100))
	// notifier streams never join checkpoint processing
	assert.Nil(producer.FindStreamByVbid(8))

	producer.NotifySeqnoAvailable(8, 101)
	end, ok := producer.GetNextItem().(*base.StreamEndResponse)
	assert.True(ok)
	assert.Equal(base.EndStreamOK, end.Reason)
	fmt.Println("============== Test case end: TestProducerNotifierMode =================")
}
