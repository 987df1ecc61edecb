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

// CheckpointCursor is an opaque handle identifying how far one stream has
// consumed the checkpoint log of its vbucket. A stream owns at most one
// cursor at a time.
type CheckpointCursor interface {
	Name() string
	Vbno() uint16
}

// CheckpointLog is the boundary to the per-vbucket ordered mutation record.
// Cursor bookkeeping and persistence live behind it.
type CheckpointLog interface {
	// RegisterCursor creates a cursor positioned after fromSeqno and returns
	// it along with the seqno the cursor currently points at. A duplicate
	// cursor name yields base.ErrorCursorAlreadyRegistered
	RegisterCursor(vbno uint16, name string, fromSeqno uint64) (CheckpointCursor, uint64, error)

	// GetOutstandingItems returns the items between the cursor position and
	// the end of the log, in seqno order, and advances the cursor
	GetOutstandingItems(cursor CheckpointCursor) ([]*base.CheckpointItem, error)

	DeregisterCursor(cursor CheckpointCursor) error

	// GetHighSeqno returns the highest seqno the vbucket has assigned
	GetHighSeqno(vbno uint16) (uint64, error)

	// NotifyOnNewData registers a callback invoked whenever a new item is
	// appended to the vbucket's log
	NotifyOnNewData(vbno uint16, callback func(seqno uint64))
}
