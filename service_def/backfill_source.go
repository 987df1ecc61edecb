// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package service_def

import (
	"github.com/couchbase/godcp/base"
)

// BackfillHandler receives the results of a disk scan. ActiveStream
// implements it. All callbacks may arrive from the scan's own execution
// context, concurrently with the stream's other entry points.
type BackfillHandler interface {
	// IncrBackfillRemaining is called once at scan start with the estimated
	// item count
	IncrBackfillRemaining(by uint64)

	// MarkDiskSnapshot opens the disk snapshot window before any item of
	// that window is delivered
	MarkDiskSnapshot(startSeqno, endSeqno uint64) error

	// BackfillReceived delivers one item. Items arrive in non-decreasing
	// seqno order. A false return asks the scanner to back off and redeliver
	// the same item later (buffer full or stream no longer backfilling).
	BackfillReceived(itm *base.Item, source base.BackfillSourceType) bool

	// CompleteBackfill signals end of scan; called exactly once per scan
	CompleteBackfill()
}

// BackfillSource is the storage engine boundary that serves historical
// mutations from durable storage.
type BackfillSource interface {
	// Scan asynchronously reads [startSeqno, endSeqno] of the vbucket and
	// delivers through the handler
	Scan(vbno uint16, startSeqno, endSeqno uint64, handler BackfillHandler) error
}
