//go:build !production

package testutil

import "sync"

// FixedDice 按顺序循环返回预设点数（1 起），实现 dice.Source
type FixedDice struct {
	mu    sync.Mutex
	faces []int
	pos   int
}

// NewFixedDice 创建固定点数序列
func NewFixedDice(faces ...int) *FixedDice {
	return &FixedDice{faces: faces}
}

func (f *FixedDice) IntN(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.faces[f.pos%len(f.faces)]
	f.pos++
	return (v - 1) % n
}
