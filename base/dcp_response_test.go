// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package base

import (
	"fmt"
	"testing"

	mc "github.com/couchbase/gomemcached"
	mcc "github.com/couchbase/gomemcached/client"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
)

func TestResponseFromUprEvent(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestResponseFromUprEvent =================")

	mutation := &mcc.UprEvent{
		Opcode:  mc.UPR_MUTATION,
		VBucket: 3,
		Opaque:  7,
		Seqno:   42,
		Key:     []byte("key"),
		Value:   []byte("value"),
		Cas:     99,
	}
	resp, err := ResponseFromUprEvent(mutation)
	assert.Nil(err)
	m, ok := resp.(*MutationResponse)
	assert.True(ok)
	assert.Equal(uint64(42), m.BySeqno())
	assert.Equal(mc.UPR_MUTATION, m.Event())
	assert.Equal(uint32(7), m.Opaque)

	deletion := &mcc.UprEvent{Opcode: mc.UPR_DELETION, VBucket: 3, Seqno: 43, Key: []byte("key")}
	resp, err = ResponseFromUprEvent(deletion)
	assert.Nil(err)
	assert.Equal(mc.UPR_DELETION, resp.Event())

	marker := &mcc.UprEvent{
		Opcode:       mc.UPR_SNAPSHOT,
		VBucket:      3,
		SnapstartSeq: 10,
		SnapendSeq:   20,
		SnapshotType: MarkerFlagDisk | MarkerFlagChk,
	}
	resp, err = ResponseFromUprEvent(marker)
	assert.Nil(err)
	sm, ok := resp.(*SnapshotMarker)
	assert.True(ok)
	assert.Equal(uint64(10), sm.StartSeqno)
	assert.Equal(uint64(20), sm.EndSeqno)
	assert.Equal(SnapshotDisk, sm.SourceType())

	end := &mcc.UprEvent{Opcode: mc.UPR_STREAMEND, VBucket: 3, Flags: uint32(EndStreamClosed)}
	resp, err = ResponseFromUprEvent(end)
	assert.Nil(err)
	se, ok := resp.(*StreamEndResponse)
	assert.True(ok)
	assert.Equal(EndStreamClosed, se.Reason)

	_, err = ResponseFromUprEvent(&mcc.UprEvent{Opcode: mc.UPR_OPEN, VBucket: 3})
	assert.NotNil(err)
	fmt.Println("============== Test case end: TestResponseFromUprEvent =================")
}

func TestInflateItemValue(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestInflateItemValue =================")

	body := []byte("some document body that compresses")
	itm := &Item{
		Key:      []byte("key"),
		Value:    snappy.Encode(nil, body),
		DataType: mcc.SnappyDataType,
	}
	assert.Nil(InflateItemValue(itm))
	assert.Equal(body, itm.Value)
	assert.Zero(itm.DataType & mcc.SnappyDataType)

	// a second pass is a no-op once the snappy bit is gone
	assert.Nil(InflateItemValue(itm))
	assert.Equal(body, itm.Value)

	corrupt := &Item{Value: []byte{0xff, 0xff, 0xff}, DataType: mcc.SnappyDataType}
	assert.NotNil(InflateItemValue(corrupt))
	fmt.Println("============== Test case end: TestInflateItemValue =================")
}
