package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store 在内存中按ID保存同一类会话
type Store[I, T any] struct {
	job   Job[I, T]
	guard Guard[I]

	mu       sync.RWMutex
	sessions map[string]*Session[I, T]
}

// NewStore 创建空的会话存储, 所有会话都运行 job
func NewStore[I, T any](job Job[I, T], guard Guard[I]) *Store[I, T] {
	return &Store[I, T]{
		job:      job,
		guard:    guard,
		sessions: make(map[string]*Session[I, T]),
	}
}

// Create 新建一个随机ID的空闲会话
func (st *Store[I, T]) Create() *Session[I, T] {
	s := New(uuid.NewString(), st.job, st.guard)

	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()
	return s
}

// Get 按ID查找会话
func (st *Store[I, T]) Get(id string) (*Session[I, T], bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete 取消并删除会话, 返回会话是否存在
func (st *Store[I, T]) Delete(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		s.Reset()
	}
	return ok
}

// Len 会话数量
func (st *Store[I, T]) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
