// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package streams

import (
	"github.com/couchbase/godcp/base"
)

// NotifierStream tells a consumer that data beyond its start seqno exists
// for a vbucket without transferring a live copy. It holds at most one
// pending notification and no backfill or cursor state.
type NotifierStream struct {
	*stream
	notifier streamNotifier
}

func NewNotifierStream(ctx *StreamContext, notifier streamNotifier, ident *base.StreamIdentity,
	seqRange *base.SequenceRange) *NotifierStream {
	return &NotifierStream{
		stream:   newStream(ctx, ident, seqRange, base.StreamTypeNotifier, "NotifierStream"),
		notifier: notifier,
	}
}

// NotifySeqnoAvailable queues the one-shot notification once the vbucket has
// advanced past the stream's start seqno, then retires the stream.
func (s *NotifierStream) NotifySeqnoAvailable(seqno uint64) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.state == base.StreamDead || seqno <= s.seqRange.StartSeqno {
		return
	}
	s.pushToReadyNoLock(&base.StreamEndResponse{
		Vbno:   s.ident.Vbno,
		Opaque: s.ident.Opaque,
		Reason: base.EndStreamOK,
	})
	s.transitionStateNoLock(base.StreamDead)
	s.notifier.notifyStreamReady(s.ident.Vbno)
}

func (s *NotifierStream) Next() base.DcpResponse {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.popFromReadyNoLock()
}

// SetDead just stops forwarding notifications; there is nothing else to
// tear down.
func (s *NotifierStream) SetDead(status base.EndStreamStatus) uint32 {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.state != base.StreamDead {
		s.transitionStateNoLock(base.StreamDead)
		s.clearReadyQNoLock()
	}
	return 0
}

var _ Stream = (*NotifierStream)(nil)
