package worker

import (
	"errors"
	"sync"
)

// ErrPoolClosed Submit 在 Close 之后调用
var ErrPoolClosed = errors.New("worker pool closed")

type Job[T any] func() T

type Result[T any] struct {
	JobID  string
	Output T
}

// Pool 固定数量的后台 worker，结果写入 Results 通道，调用方需要持续消费
type Pool[T any] struct {
	jobs    chan jobWrapper[T]
	results chan Result[T]

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type jobWrapper[T any] struct {
	id string
	fn Job[T]
}

func NewPool[T any](workerCount int, bufferSize int) *Pool[T] {
	if workerCount <= 0 {
		workerCount = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	p := &Pool[T]{
		jobs:    make(chan jobWrapper[T], bufferSize),
		results: make(chan Result[T], bufferSize),
	}

	p.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		output := job.fn()
		p.results <- Result[T]{
			JobID:  job.id,
			Output: output,
		}
	}
}

// Submit 阻塞直到任务入队
func (p *Pool[T]) Submit(id string, fn Job[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.jobs <- jobWrapper[T]{id: id, fn: fn}
	return nil
}

// TrySubmit 队列已满时立即返回 false
func (p *Pool[T]) TrySubmit(id string, fn Job[T]) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrPoolClosed
	}
	select {
	case p.jobs <- jobWrapper[T]{id: id, fn: fn}:
		return true, nil
	default:
		return false, nil
	}
}

func (p *Pool[T]) Results() <-chan Result[T] {
	return p.results
}

// Close 停止接收新任务，等待已入队任务执行完毕后关闭 Results
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.results)
}
