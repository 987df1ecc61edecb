// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package service_def

import (
	"time"
)

// Task is one cooperatively scheduled unit of work. Run returns true if the
// task wants to run again, false to retire it.
type Task interface {
	Run() bool
	Description() string
}

// Scheduler is the generic background task runner boundary. Tasks snooze
// until woken; Wakeup is safe to call from any goroutine, including from
// inside Run.
type Scheduler interface {
	Schedule(task Task) error
	Snooze(task Task, duration time.Duration)
	Wakeup(task Task)
	Cancel(task Task)
}
