package node

import (
	"sync"
	"sync/atomic"
)

// Registry 是写时复制的有序列表。Snapshot 返回的切片永远不会被之后的增删修改。
type Registry[T any] struct {
	mu    sync.Mutex // 串行化写者
	items atomic.Pointer[[]T]
}

// Snapshot 返回当前内容，调用方不得修改返回的切片
func (r *Registry[T]) Snapshot() []T {
	if p := r.items.Load(); p != nil {
		return *p
	}
	return nil
}

func (r *Registry[T]) Len() int {
	return len(r.Snapshot())
}

// Add 追加一个元素
func (r *Registry[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.Snapshot()
	next := make([]T, len(old), len(old)+1)
	copy(next, old)
	next = append(next, item)
	r.items.Store(&next)
}

// AddIfAbsent 在没有元素满足 match 时追加，返回是否追加成功
func (r *Registry[T]) AddIfAbsent(item T, match func(T) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.Snapshot()
	for _, v := range old {
		if match(v) {
			return false
		}
	}
	next := make([]T, len(old), len(old)+1)
	copy(next, old)
	next = append(next, item)
	r.items.Store(&next)
	return true
}

// Remove 删除第一个满足 match 的元素
func (r *Registry[T]) Remove(match func(T) bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.Snapshot()
	for i, v := range old {
		if !match(v) {
			continue
		}
		next := make([]T, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		r.items.Store(&next)
		return v, true
	}
	var zero T
	return zero, false
}

// Find 在当前快照中查找第一个满足 match 的元素
func (r *Registry[T]) Find(match func(T) bool) (T, bool) {
	for _, v := range r.Snapshot() {
		if match(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
