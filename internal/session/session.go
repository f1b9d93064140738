// Package session 每个会话同一时间只跑一个任务, 通过不可变快照暴露进度.
// HTTP API 的分析请求都经过这里.
package session

import (
	"context"
	"sync"
	"time"

	"llm-aeo-tracker/internal/common"
)

// State 会话状态
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Job 执行一次运行, ctx 结束后必须尽快返回
type Job[I, T any] func(ctx context.Context, input I) (T, error)

// Guard 在运行前校验输入. 返回错误时拒绝提交, 会话保持不变
type Guard[I any] func(input I) error

// Snapshot 会话某一时刻的副本, 之后的状态变化不会影响已返回的快照
type Snapshot[I, T any] struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Generation uint64    `json:"generation"`
	Input      I         `json:"input"`
	Result     T         `json:"result"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Session 状态机: idle -> running -> succeeded|failed, Reset 回到 idle.
// 运行中再次提交会取消上一次运行并丢弃其结果.
type Session[I, T any] struct {
	id    string
	job   Job[I, T]
	guard Guard[I]

	mu         sync.Mutex
	state      State
	generation uint64
	input      I
	result     T
	err        error
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc
	done       chan struct{}

	nowFunc func() time.Time
}

// New 创建空闲会话, guard 可以为 nil
func New[I, T any](id string, job Job[I, T], guard Guard[I]) *Session[I, T] {
	return &Session[I, T]{
		id:      id,
		job:     job,
		guard:   guard,
		state:   StateIdle,
		nowFunc: time.Now,
	}
}

// ID 会话ID
func (s *Session[I, T]) ID() string {
	return s.id
}

// Submit 校验输入并在后台启动运行. 运行保留 ctx 的值但不继承取消,
// 所以发起的请求结束后仍会继续; 用 Cancel 停止.
func (s *Session[I, T]) Submit(ctx context.Context, input I) (Snapshot[I, T], error) {
	if s.guard != nil {
		if err := s.guard(input); err != nil {
			return s.Snapshot(), err
		}
	}

	s.mu.Lock()
	s.supersedeLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var zero T
	s.generation++
	gen := s.generation
	s.state = StateRunning
	s.input = input
	s.result = zero
	s.err = nil
	s.startedAt = s.nowFunc()
	s.finishedAt = time.Time{}
	s.cancel = cancel
	s.done = make(chan struct{})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	go func() {
		result, err := s.job(runCtx, input)
		s.finish(gen, result, err)
	}()

	return snap, nil
}

func (s *Session[I, T]) finish(gen uint64, result T, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 已被 Cancel/Reset 或更新的 Submit 取代
	if gen != s.generation || s.state != StateRunning {
		return
	}

	if err != nil {
		s.state = StateFailed
		s.err = err
	} else {
		s.state = StateSucceeded
		s.result = result
	}
	s.finishedAt = s.nowFunc()
	s.releaseLocked()
}

// Cancel 停止运行中的任务, 会话转为 failed (common.ErrCanceled). 其他状态下无操作.
func (s *Session[I, T]) Cancel() Snapshot[I, T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.supersedeLocked()
		s.state = StateFailed
		s.err = common.WrapError(common.ErrCodeCanceled, "run canceled", context.Canceled)
		s.finishedAt = s.nowFunc()
	}
	return s.snapshotLocked()
}

// Reset 回到 idle, 运行中的任务先被取消
func (s *Session[I, T]) Reset() Snapshot[I, T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.supersedeLocked()

	var zeroIn I
	var zeroOut T
	s.state = StateIdle
	s.input = zeroIn
	s.result = zeroOut
	s.err = nil
	s.startedAt = time.Time{}
	s.finishedAt = time.Time{}
	return s.snapshotLocked()
}

// Snapshot 返回当前状态
func (s *Session[I, T]) Snapshot() Snapshot[I, T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wait 阻塞到当前运行结束(或 ctx 结束)并返回快照. 没有运行时立即返回.
func (s *Session[I, T]) Wait(ctx context.Context) (Snapshot[I, T], error) {
	for {
		s.mu.Lock()
		if s.state != StateRunning {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, nil
		}
		done := s.done
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
}

// supersedeLocked 取消进行中的运行并递增代数, 让它的结果被丢弃
func (s *Session[I, T]) supersedeLocked() {
	if s.state != StateRunning {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	s.releaseLocked()
}

func (s *Session[I, T]) releaseLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

func (s *Session[I, T]) snapshotLocked() Snapshot[I, T] {
	snap := Snapshot[I, T]{
		ID:         s.id,
		State:      s.state,
		Generation: s.generation,
		Input:      s.input,
		Result:     s.result,
		Err:        s.err,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}
