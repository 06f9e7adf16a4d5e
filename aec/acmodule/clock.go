package acmodule

import (
	"sync"
	"time"
)

// Clock supplies the current time to every schedule computation. State
// records keep int64 unix seconds; only callers touch time.Time.
type Clock interface {
	Now() time.Time
	Unix() int64
}

type GoTimeClock struct{}

func (cl *GoTimeClock) Now() time.Time {
	return time.Now()
}

func (cl *GoTimeClock) Unix() int64 {
	return time.Now().Unix()
}

// ManualClock is for tests; it only moves when told to.
type ManualClock struct {
	lock sync.Mutex
	now  time.Time
}

func NewManualClock(unix int64) *ManualClock {
	return &ManualClock{now: time.Unix(unix, 0)}
}

func (cl *ManualClock) Now() time.Time {
	cl.lock.Lock()
	defer cl.lock.Unlock()
	return cl.now
}

func (cl *ManualClock) Unix() int64 {
	return cl.Now().Unix()
}

func (cl *ManualClock) SetTime(t time.Time) {
	cl.lock.Lock()
	defer cl.lock.Unlock()
	if t.Before(cl.now) {
		return
	}
	cl.now = t
}

func (cl *ManualClock) PassTime(d time.Duration) {
	cl.lock.Lock()
	defer cl.lock.Unlock()
	cl.now = cl.now.Add(d)
}

func (cl *ManualClock) PassSeconds(s int64) {
	cl.PassTime(time.Duration(s) * time.Second)
}
