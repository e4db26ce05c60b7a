package common

import (
	"sync/atomic"
)

// LifecycleStatus tracks component state transitions with CAS so a
// component cannot be started twice or stopped before it started.
// 0:origin 1:initing 2:inited 3:starting 4:started 5:stopping 6:stopped
type LifecycleStatus struct {
	Status int32
}

func (s *LifecycleStatus) PreInit() bool {
	return atomic.CompareAndSwapInt32(&s.Status, 0, 1)
}
func (s *LifecycleStatus) PostInit() bool {
	return atomic.CompareAndSwapInt32(&s.Status, 1, 2)
}
func (s *LifecycleStatus) PreStart() bool {
	return atomic.CompareAndSwapInt32(&s.Status, 2, 3) || atomic.CompareAndSwapInt32(&s.Status, 6, 3)
}
func (s *LifecycleStatus) PostStart() bool {
	return atomic.CompareAndSwapInt32(&s.Status, 3, 4)
}
func (s *LifecycleStatus) PreStop() bool {
	return atomic.CompareAndSwapInt32(&s.Status, 4, 5)
}
func (s *LifecycleStatus) PostStop() bool {
	return atomic.CompareAndSwapInt32(&s.Status, 5, 6)
}

func (s *LifecycleStatus) Stopped() bool {
	status := atomic.LoadInt32(&s.Status)
	return status == 5 || status == 6
}

func (s *LifecycleStatus) GetStatus() int32 {
	return atomic.LoadInt32(&s.Status)
}

type Lifecycle interface {
	Init() error
	Start() error
	Stop() error
	GetStatus() int32
}
