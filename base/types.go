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
	"sync"
)

// StreamState is the lifecycle state of a stream. Exactly one value is
// current at any time, guarded by the stream's own mutex. Dead is terminal.
type StreamState int

const (
	StreamPending StreamState = iota
	StreamBackfilling
	StreamInMemory
	StreamTakeoverSend
	StreamTakeoverWait
	StreamReading
	StreamDead
)

func (s StreamState) String() string {
	switch s {
	case StreamPending:
		return "pending"
	case StreamBackfilling:
		return "backfilling"
	case StreamInMemory:
		return "in-memory"
	case StreamTakeoverSend:
		return "takeover-send"
	case StreamTakeoverWait:
		return "takeover-wait"
	case StreamReading:
		return "reading"
	case StreamDead:
		return "dead"
	}
	return fmt.Sprintf("unknown (%d)", int(s))
}

// StreamType discriminates the three concrete stream kinds
type StreamType int

const (
	StreamTypeActive StreamType = iota
	StreamTypeNotifier
	StreamTypePassive
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeActive:
		return "active"
	case StreamTypeNotifier:
		return "notifier"
	case StreamTypePassive:
		return "passive"
	}
	return fmt.Sprintf("unknown (%d)", int(t))
}

// EndStreamStatus is the reason carried on a StreamEnd message
type EndStreamStatus int

const (
	// EndStreamOK - all requested items were streamed
	EndStreamOK EndStreamStatus = iota
	// EndStreamClosed - the stream was closed early by a close-stream request
	EndStreamClosed
	// EndStreamStateChanged - the vbucket state changed and invalidated the stream
	EndStreamStateChanged
	// EndStreamDisconnected - the connection was lost
	EndStreamDisconnected
	// EndStreamSlow - the stream was shed for falling too far behind
	EndStreamSlow
)

func (e EndStreamStatus) String() string {
	switch e {
	case EndStreamOK:
		return "The stream ended due to all items being streamed"
	case EndStreamClosed:
		return "The stream closed early due to a close stream message"
	case EndStreamStateChanged:
		return "The stream closed early because the vbucket state changed"
	case EndStreamDisconnected:
		return "The stream closed early because the conn was disconnected"
	case EndStreamSlow:
		return "The stream was closed early because it was too slow"
	}
	return fmt.Sprintf("Status unknown: %d; this should not have happened", int(e))
}

// SnapshotType tags which source the current snapshot window was produced from
type SnapshotType int

const (
	SnapshotNone SnapshotType = iota
	SnapshotDisk
	SnapshotMemory
)

// BackfillSourceType tags where a backfill item was read from
type BackfillSourceType int

const (
	BackfillFromMemory BackfillSourceType = iota
	BackfillFromDisk
)

// ProcessItemsResult is returned by PassiveStream.ProcessBufferedMessages
type ProcessItemsResult int

const (
	// AllProcessed - the buffer was fully drained
	AllProcessed ProcessItemsResult = iota
	// MoreToProcess - the batch limit was hit with messages still buffered
	MoreToProcess
	// CannotProcess - transient apply failure; retry the same batch
	CannotProcess
)

// VbState is the replication state of a vbucket
type VbState int

const (
	VbActive VbState = iota
	VbReplica
	VbPending
	VbDead
)

func (v VbState) String() string {
	switch v {
	case VbActive:
		return "active"
	case VbReplica:
		return "replica"
	case VbPending:
		return "pending"
	case VbDead:
		return "dead"
	}
	return fmt.Sprintf("unknown (%d)", int(v))
}

// StreamIdentity is the immutable tuple negotiated at stream open
type StreamIdentity struct {
	Name   string
	Vbno   uint16
	Opaque uint32
	Flags  uint32
	VbUuid uint64
}

func (ident *StreamIdentity) IsTakeover() bool {
	return ident.Flags&DcpStreamAddFlagTakeover > 0
}

func (ident *StreamIdentity) String() string {
	return fmt.Sprintf("%v (vb %v)", ident.Name, ident.Vbno)
}

// SequenceRange is the delivery contract of one stream instance. EndSeqno of
// DcpMaxSeqno means open ended tailing.
type SequenceRange struct {
	StartSeqno     uint64
	EndSeqno       uint64
	SnapStartSeqno uint64
	SnapEndSeqno   uint64
}

func (r *SequenceRange) String() string {
	return fmt.Sprintf("[seqno=%v..%v, snapshot=%v..%v]",
		r.StartSeqno, r.EndSeqno, r.SnapStartSeqno, r.SnapEndSeqno)
}

// Item is one mutation, deletion or expiration as handed over by the
// checkpoint log or the backfill scanner
type Item struct {
	Key      []byte
	Value    []byte
	Vbno     uint16
	Seqno    uint64
	RevSeqno uint64
	Cas      uint64
	Flags    uint32
	Expiry   uint32
	DataType uint8
	Deleted  bool
	Expired  bool
}

// Size is the number of payload bytes the item accounts for in flow control
func (itm *Item) Size() uint32 {
	return uint32(len(itm.Key) + len(itm.Value))
}

// CheckpointOp tags entries returned by CheckpointLog.GetOutstandingItems
type CheckpointOp int

const (
	CheckpointOpMutation CheckpointOp = iota
	CheckpointOpStart
	CheckpointOpEnd
)

// CheckpointItem is one entry pulled from the checkpoint log through a
// cursor. Start/End entries delimit snapshot boundaries; Item is only set
// for CheckpointOpMutation.
type CheckpointItem struct {
	Op        CheckpointOp
	Item      *Item
	SnapStart uint64
	SnapEnd   uint64
}

// SeqnoWithLock is a seqno guarded by its own RWMutex, for fields that are
// read and written from different goroutines without the owning component's
// lock held
type SeqnoWithLock struct {
	seqno uint64
	lock  *sync.RWMutex
}

func NewSeqnoWithLock() *SeqnoWithLock {
	return &SeqnoWithLock{0, &sync.RWMutex{}}
}

func (seqnoObj *SeqnoWithLock) GetSeqno() uint64 {
	seqnoObj.lock.RLock()
	defer seqnoObj.lock.RUnlock()
	return seqnoObj.seqno
}

func (seqnoObj *SeqnoWithLock) SetSeqno(seqno uint64) {
	seqnoObj.lock.Lock()
	defer seqnoObj.lock.Unlock()
	seqnoObj.seqno = seqno
}
