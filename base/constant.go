// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package base

import (
	"math"
	"time"
)

// NumberOfVbs is the total number of vbuckets a bucket is sharded into
const NumberOfVbs = 1024

// DcpMaxSeqno is used as the end seqno for streams that tail indefinitely
const DcpMaxSeqno uint64 = math.MaxUint64

// Flags passed on a stream request
const (
	DcpStreamAddFlagTakeover  uint32 = 0x01
	DcpStreamAddFlagDiskOnly  uint32 = 0x02
	DcpStreamAddFlagLatest    uint32 = 0x04
	DcpStreamAddFlagNoValue   uint32 = 0x08
	DcpStreamAddFlagActivendn uint32 = 0x10
)

// Snapshot marker flags
const (
	MarkerFlagMemory uint32 = 0x01
	MarkerFlagDisk   uint32 = 0x02
	MarkerFlagChk    uint32 = 0x04
	MarkerFlagAck    uint32 = 0x08
)

// Approximate per-message overhead used for ready queue and receive buffer
// byte accounting. Mirrors the header size of the underlying memcached packet.
const MessageOverheadBytes = 24

// Default settings values. Each has a matching field in DcpSettings.
const (
	DefaultSnapshotMarkerYieldLimit = 10
	DefaultSlowStreamBacklogRatio   = 0.5
	DefaultReplicationMemoryQuota   = 100 * 1024 * 1024
	DefaultBackfillBufferBytes      = 20 * 1024 * 1024
	DefaultBackfillBufferItems      = 1000
	DefaultConsumerBufferBytes      = 20 * 1024 * 1024
	DefaultConsumerBatchSize        = 10
	DefaultBufferAckThreshold       = 0.2
	DefaultTakeoverSendMaxTime      = 60 * time.Second
)

// Stats names registered with the per-connection metrics registry
const (
	StatsDocsSent       = "docs_sent"
	StatsDataSent       = "data_sent"
	StatsDocsReceived   = "docs_received"
	StatsDataReceived   = "data_received"
	StatsBackfillItems  = "backfill_items"
	StatsReadyQueueSize = "ready_queue_size"
)

// DcpSettings carries the tunables of the stream engine. A single instance is
// shared by all streams of a connection through the StreamContext.
type DcpSettings struct {
	// Number of vbuckets the checkpoint processor task visits before yielding
	// back to the scheduler
	SnapshotMarkerYieldLimit int

	// An InMemory stream whose ready queue exceeds this fraction of
	// ReplicationMemoryQuota is demoted back to Backfilling
	SlowStreamBacklogRatio float64

	// Total memory allowance across all streams of this process
	ReplicationMemoryQuota uint64

	// Bounds on disk-sourced data buffered in a stream's ready queue while
	// the backfill scan is still running
	BackfillBufferBytes uint32
	BackfillBufferItems uint32

	// Bound on the consumer-side receive buffer, per stream
	ConsumerBufferBytes uint32

	// Max buffered messages applied per ProcessBufferedMessages invocation
	ConsumerBatchSize int

	// Fraction of ConsumerBufferBytes that must be drained before a buffer
	// ack is owed to the producer
	BufferAckThreshold float64

	// How long a takeover stream may sit in TakeoverSend without progress
	// before the handoff is abandoned
	TakeoverSendMaxTime time.Duration
}

func DefaultDcpSettings() *DcpSettings {
	return &DcpSettings{
		SnapshotMarkerYieldLimit: DefaultSnapshotMarkerYieldLimit,
		SlowStreamBacklogRatio:   DefaultSlowStreamBacklogRatio,
		ReplicationMemoryQuota:   DefaultReplicationMemoryQuota,
		BackfillBufferBytes:      DefaultBackfillBufferBytes,
		BackfillBufferItems:      DefaultBackfillBufferItems,
		ConsumerBufferBytes:      DefaultConsumerBufferBytes,
		ConsumerBatchSize:        DefaultConsumerBatchSize,
		BufferAckThreshold:       DefaultBufferAckThreshold,
		TakeoverSendMaxTime:      DefaultTakeoverSendMaxTime,
	}
}
