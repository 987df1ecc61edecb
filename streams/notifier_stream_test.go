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
	"github.com/stretchr/testify/assert"
)

func setupNotifierStream(startSeqno uint64) (*NotifierStream, *testNotifier) {
	_, _, _, notifier, ctx := setupActiveStreamBoilerPlate()
	ident := &base.StreamIdentity{Name: "testNotifierConn", Vbno: 21, Opaque: 300}
	seqRange := &base.SequenceRange{StartSeqno: startSeqno, EndSeqno: base.DcpMaxSeqno}
	return NewNotifierStream(ctx, notifier, ident, seqRange), notifier
}

func TestNotifierStreamFiresOnce(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestNotifierStreamFiresOnce =================")
	s, _ := setupNotifierStream(100)

	// seqnos at or below the start are not news
	s.NotifySeqnoAvailable(99)
	s.NotifySeqnoAvailable(100)
	assert.Nil(s.Next())
	assert.Equal(base.StreamPending, s.GetState())

	s.NotifySeqnoAvailable(101)
	end, ok := s.Next().(*base.StreamEndResponse)
	assert.True(ok)
	assert.Equal(base.EndStreamOK, end.Reason)
	assert.Equal(base.StreamDead, s.GetState())

	// a later notify cannot resurrect the stream
	s.NotifySeqnoAvailable(200)
	assert.Nil(s.Next())
	fmt.Println("============== Test case end: TestNotifierStreamFiresOnce =================")
}

func TestNotifierStreamSetDead(t *testing.T) {
	assert := assert.New(t)
	fmt.Println("============== Test case start: TestNotifierStreamSetDead =================")
	s, _ := setupNotifierStream(100)

	s.SetDead(base.EndStreamClosed)
	assert.Equal(base.StreamDead, s.GetState())
	s.NotifySeqnoAvailable(500)
	assert.Nil(s.Next())
	assert.Zero(s.GetReadyQueueMemory())
	fmt.Println("============== Test case end: TestNotifierStreamSetDead =================")
}
