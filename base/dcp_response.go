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

	mc "github.com/couchbase/gomemcached"
	mcc "github.com/couchbase/gomemcached/client"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// DcpResponse is one outbound protocol message held in a stream's ready
// queue, or one decoded inbound message held in a passive stream's receive
// buffer. It is a closed set: the concrete types below are the only
// implementations.
type DcpResponse interface {
	// Event returns the memcached command code of the message
	Event() mc.CommandCode
	// Size returns the byte footprint used for queue accounting and flow
	// control. It approximates the encoded packet size.
	Size() uint32
	String() string
}

// MutationResponse carries a single mutation, deletion or expiration
type MutationResponse struct {
	Item   *Item
	Opaque uint32
}

func (m *MutationResponse) Event() mc.CommandCode {
	if m.Item.Expired {
		return mc.UPR_EXPIRATION
	}
	if m.Item.Deleted {
		return mc.UPR_DELETION
	}
	return mc.UPR_MUTATION
}

func (m *MutationResponse) BySeqno() uint64 {
	return m.Item.Seqno
}

func (m *MutationResponse) Size() uint32 {
	return m.Item.Size() + MessageOverheadBytes
}

func (m *MutationResponse) String() string {
	return fmt.Sprintf("%v for vb %v, seqno %v", mc.CommandNames[m.Event()], m.Item.Vbno, m.Item.Seqno)
}

// SnapshotMarker opens a new snapshot window [StartSeqno, EndSeqno]
type SnapshotMarker struct {
	StartSeqno uint64
	EndSeqno   uint64
	Vbno       uint16
	Opaque     uint32
	Flags      uint32
}

func (s *SnapshotMarker) Event() mc.CommandCode {
	return mc.UPR_SNAPSHOT
}

func (s *SnapshotMarker) Size() uint32 {
	return MessageOverheadBytes + 20
}

func (s *SnapshotMarker) SourceType() SnapshotType {
	if s.Flags&MarkerFlagDisk > 0 {
		return SnapshotDisk
	}
	return SnapshotMemory
}

func (s *SnapshotMarker) String() string {
	return fmt.Sprintf("UPR_SNAPSHOT for vb %v, range %v..%v, flags %x", s.Vbno, s.StartSeqno, s.EndSeqno, s.Flags)
}

// SetVBucketState instructs the consumer to move its vbucket to State.
// Sent during takeover handoff.
type SetVBucketState struct {
	Vbno   uint16
	Opaque uint32
	State  VbState
}

func (s *SetVBucketState) Event() mc.CommandCode {
	return mc.SET_VBUCKET
}

func (s *SetVBucketState) Size() uint32 {
	return MessageOverheadBytes + 4
}

func (s *SetVBucketState) String() string {
	return fmt.Sprintf("SET_VBUCKET for vb %v, state %v", s.Vbno, s.State)
}

// StreamEndResponse terminates a stream with a reason
type StreamEndResponse struct {
	Vbno   uint16
	Opaque uint32
	Reason EndStreamStatus
}

func (s *StreamEndResponse) Event() mc.CommandCode {
	return mc.UPR_STREAMEND
}

func (s *StreamEndResponse) Size() uint32 {
	return MessageOverheadBytes + 4
}

func (s *StreamEndResponse) String() string {
	return fmt.Sprintf("UPR_STREAMEND for vb %v, reason: %v", s.Vbno, s.Reason)
}

// SetVBucketStateAck acknowledges a SetVBucketState back to the producer
type SetVBucketStateAck struct {
	Vbno   uint16
	Opaque uint32
	Status mc.Status
}

func (s *SetVBucketStateAck) Event() mc.CommandCode {
	return mc.SET_VBUCKET
}

func (s *SetVBucketStateAck) Size() uint32 {
	return MessageOverheadBytes
}

func (s *SetVBucketStateAck) String() string {
	return fmt.Sprintf("SET_VBUCKET ack for vb %v, status %v", s.Vbno, s.Status)
}

// SnapshotMarkerAck acknowledges an ack-required snapshot back to the producer
type SnapshotMarkerAck struct {
	Vbno   uint16
	Opaque uint32
}

func (s *SnapshotMarkerAck) Event() mc.CommandCode {
	return mc.UPR_SNAPSHOT
}

func (s *SnapshotMarkerAck) Size() uint32 {
	return MessageOverheadBytes
}

func (s *SnapshotMarkerAck) String() string {
	return fmt.Sprintf("UPR_SNAPSHOT ack for vb %v", s.Vbno)
}

// ResponseFromUprEvent converts a decoded wire event into the response value
// the passive stream buffers. The wire layer owns packet decoding; this is
// the hand-off point at that boundary.
func ResponseFromUprEvent(event *mcc.UprEvent) (DcpResponse, error) {
	switch event.Opcode {
	case mc.UPR_MUTATION, mc.UPR_DELETION, mc.UPR_EXPIRATION:
		itm := &Item{
			Key:      event.Key,
			Value:    event.Value,
			Vbno:     event.VBucket,
			Seqno:    event.Seqno,
			RevSeqno: event.RevSeqno,
			Cas:      event.Cas,
			Flags:    event.Flags,
			Expiry:   event.Expiry,
			DataType: event.DataType,
			Deleted:  event.Opcode == mc.UPR_DELETION,
			Expired:  event.Opcode == mc.UPR_EXPIRATION,
		}
		return &MutationResponse{Item: itm, Opaque: uint32(event.Opaque)}, nil
	case mc.UPR_SNAPSHOT:
		return &SnapshotMarker{
			StartSeqno: event.SnapstartSeq,
			EndSeqno:   event.SnapendSeq,
			Vbno:       event.VBucket,
			Opaque:     uint32(event.Opaque),
			Flags:      event.SnapshotType,
		}, nil
	case mc.UPR_STREAMEND:
		return &StreamEndResponse{
			Vbno:   event.VBucket,
			Opaque: uint32(event.Opaque),
			Reason: EndStreamStatus(event.Flags),
		}, nil
	case mc.SET_VBUCKET:
		return &SetVBucketState{
			Vbno:   event.VBucket,
			Opaque: uint32(event.Opaque),
			State:  VbState(event.Flags),
		}, nil
	}
	return nil, errors.Wrapf(ErrorInvalidInput, "unexpected event %v for vb %v", event.Opcode, event.VBucket)
}

// InflateItemValue uncompresses the item value in place if the snappy
// datatype bit is set. Called on the consumer apply path before the write
// reaches the storage engine.
func InflateItemValue(itm *Item) error {
	if itm.DataType&mcc.SnappyDataType == 0 {
		return nil
	}
	inflated, err := snappy.Decode(nil, itm.Value)
	if err != nil {
		return errors.Wrapf(ErrorCompressionUnableToInflate, "vb %v seqno %v: %v", itm.Vbno, itm.Seqno, err)
	}
	itm.Value = inflated
	itm.DataType &^= mcc.SnappyDataType
	return nil
}
