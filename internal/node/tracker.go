package node

import (
	"sync"
	"time"
)

// Tracker 记录每个设备的最后更新时间（按原始设备 ID），以及尚未推送的传感器键集合
type Tracker struct {
	mu         sync.Mutex
	lastUpdate map[string]time.Time
	pending    map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		lastUpdate: make(map[string]time.Time),
		pending:    make(map[string]struct{}),
	}
}

// Touch 记录设备更新时间
func (t *Tracker) Touch(deviceID string, ts time.Time) {
	t.mu.Lock()
	t.lastUpdate[deviceID] = ts
	t.mu.Unlock()
}

// MarkPending 标记传感器键有未推送的增量
func (t *Tracker) MarkPending(key string) {
	t.mu.Lock()
	t.pending[key] = struct{}{}
	t.mu.Unlock()
}

// Drain 原子地取出并清空待推送集合
func (t *Tracker) Drain() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	out := t.pending
	t.pending = make(map[string]struct{})
	return out
}

func (t *Tracker) LastUpdate(deviceID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastUpdate[deviceID]
	return ts, ok
}

// Forget 清除设备的所有跟踪状态
func (t *Tracker) Forget(deviceID, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastUpdate, deviceID)
	delete(t.pending, key)
}
