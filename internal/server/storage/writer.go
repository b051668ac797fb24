package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const writeTimeout = 3 * time.Second

// SaveFunc 写入一份数据
type SaveFunc[T any] func(ctx context.Context, v T) error

// Writer 异步写入器。同一个键只保留版本号最大的一份待写数据，
// 单个后台协程按入队顺序逐条写入，因此同一实体的写入不会乱序。
type Writer[T any] struct {
	name string
	save SaveFunc[T]

	mu      sync.Mutex
	pending map[string]T
	queue   []string
	latest  map[string]uint64 // 每个键已接受的最大版本号
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewWriter 创建并启动写入器
func NewWriter[T any](name string, save SaveFunc[T]) *Writer[T] {
	w := &Writer[T]{
		name:    name,
		save:    save,
		pending: make(map[string]T),
		latest:  make(map[string]uint64),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue 投递 key 的第 rev 版数据。版本不高于已接受版本或写入器已关闭时丢弃并返回 false
func (w *Writer[T]) Enqueue(key string, rev uint64, v T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || rev <= w.latest[key] {
		return false
	}
	w.latest[key] = rev
	if _, queued := w.pending[key]; !queued {
		w.queue = append(w.queue, key)
	}
	w.pending[key] = v
	w.signal()
	return true
}

// Close 停止接收新数据，写完所有待写数据后返回
func (w *Writer[T]) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.signal()
	w.mu.Unlock()
	<-w.done
}

// signal 调用方持有 w.mu
func (w *Writer[T]) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer[T]) run() {
	defer close(w.done)
	log := logrus.WithField("component", w.name)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.mu.Unlock()
			<-w.wake
			w.mu.Lock()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		key := w.queue[0]
		w.queue = w.queue[1:]
		v := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.save(ctx, v); err != nil {
			log.WithError(err).WithField("key", key).Warn("⚠️ 异步写入失败")
		}
		cancel()
	}
}
