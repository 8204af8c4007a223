package device

import "sync/atomic"

// observerSlot 保存设备唯一的观察者
type observerSlot struct {
	ptr atomic.Pointer[observerBox]
}

type observerBox struct {
	o Observer
}

func (s *observerSlot) set(o Observer) {
	if o == nil {
		s.ptr.Store(nil)
		return
	}
	s.ptr.Store(&observerBox{o: o})
}

func (s *observerSlot) notify(d Device) {
	if box := s.ptr.Load(); box != nil {
		box.o.OnDeviceUpdated(d)
	}
}
