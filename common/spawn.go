package common

import (
	"sync/atomic"

	log "github.com/spirit-labs/opi/logger"
)

var runningGRs int64

// Go spawns a goroutine and keeps track of the number of running GRs. A panic in f is logged and swallowed.
func Go(f func()) {
	atomic.AddInt64(&runningGRs, 1)
	go func() {
		defer atomic.AddInt64(&runningGRs, -1)
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic in goroutine: %v\n%s", r, GetCurrentStack())
			}
		}()
		f()
	}()
}

func RunningGRCount() int64 {
	return atomic.LoadInt64(&runningGRs)
}
