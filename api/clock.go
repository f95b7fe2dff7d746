package api

import (
	"sync/atomic"
	"time"
)

// Event timestamps double as the ordering key in the journal, so they must
// keep increasing even when two events land in the same nanosecond or the
// wall clock steps backwards.
var lastEventStamp int64

func eventStamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastEventStamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastEventStamp, last, now) {
			return now
		}
	}
}
