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

// KVEngine is the storage engine boundary the consumer applies an incoming
// stream against. A base.ErrorTempFail return signals transient backpressure;
// the caller must retry the same write without dropping it.
type KVEngine interface {
	// SetWithMeta applies a mutation preserving the replicated cas, revSeqno
	// and seqno
	SetWithMeta(itm *base.Item) error

	// DeleteWithMeta applies a deletion or expiration
	DeleteWithMeta(itm *base.Item) error

	// SetVBucketState moves the vbucket to the given replication state
	SetVBucketState(vbno uint16, state base.VbState) error

	// GetHighSeqno returns the highest seqno applied to the vbucket
	GetHighSeqno(vbno uint16) (uint64, error)
}
