package device

import (
	"fmt"
	"sync"
)

// IDRegistry 记录已占用的设备 ID，可在多个节点之间共享以保证 ID 全局唯一
type IDRegistry struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewIDRegistry() *IDRegistry {
	return &IDRegistry{ids: make(map[string]struct{})}
}

// Reserve 占用一个 ID，已被占用时返回 ErrDuplicateID
func (r *IDRegistry) Reserve(id string) error {
	id = normalize(id)
	if id == "" {
		return ErrBlankID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.ids[id] = struct{}{}
	return nil
}

func (r *IDRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, normalize(id))
}

func (r *IDRegistry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[normalize(id)]
	return ok
}
