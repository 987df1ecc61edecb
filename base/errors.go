// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package base

import (
	"errors"
)

// Various error messages
var (
	ErrorNotMyVbucket               = errors.New("NOT_MY_VBUCKET")
	ErrorStreamExists               = errors.New("Stream already exists for this vbucket and is not dead")
	ErrorStreamDead                 = errors.New("Stream is dead")
	ErrorStreamNotFound             = errors.New("No stream found for this vbucket")
	ErrorErange                     = errors.New("Requested seqno range is outside what the vbucket can serve")
	ErrorInvalidInput               = errors.New("Invalid input given")
	ErrorTempFail                   = errors.New("Temporary failure applying mutation; retry the same batch")
	ErrorBufferFull                 = errors.New("Consumer receive buffer is over budget")
	ErrorCursorAlreadyRegistered    = errors.New("A cursor with this name is already registered on the vbucket")
	ErrorCompressionUnableToInflate = errors.New("Unable to properly uncompress data from DCP")
	ErrorSnapshotOutOfOrder         = errors.New("Mutation seqno falls outside the current snapshot window")
	ErrorTaskCancelled              = errors.New("Task has been cancelled")

	InvalidStateTransitionErrMsg = "Can't move to state %v - stream %v's current state is %v"
)
