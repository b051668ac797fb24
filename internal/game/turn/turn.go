// Package turn sequences which character may act in a session.
package turn

import "slices"

// Order 回合顺序与当前位置
type Order struct {
	IDs   []string `json:"ids"`
	Index int      `json:"index"`
}

// AliveFunc 判断角色是否可以行动
type AliveFunc func(id string) bool

// Current 当前行动角色 ID，顺序为空时返回空串
func (o *Order) Current() string {
	if len(o.IDs) == 0 || o.Index < 0 || o.Index >= len(o.IDs) {
		return ""
	}
	return o.IDs[o.Index]
}

// Append 追加角色到顺序末尾
func (o *Order) Append(id string) {
	o.IDs = append(o.IDs, id)
}

// Remove 从顺序中移除角色，保持当前角色不变（被移除者为当前角色时指向其后继）
func (o *Order) Remove(id string) {
	i := slices.Index(o.IDs, id)
	if i < 0 {
		return
	}
	o.IDs = slices.Delete(o.IDs, i, i+1)
	if i < o.Index {
		o.Index--
	}
	if o.Index >= len(o.IDs) {
		o.Index = 0
	}
}

// Advance 循环推进到下一个存活角色，返回新的位置。
// 没有任何存活角色时只前进一格。
func (o *Order) Advance(alive AliveFunc) int {
	n := len(o.IDs)
	if n == 0 {
		return 0
	}
	for step := 1; step <= n; step++ {
		next := (o.Index + step) % n
		if alive(o.IDs[next]) {
			o.Index = next
			return next
		}
	}
	o.Index = (o.Index + 1) % n
	return o.Index
}

// Settle 若当前角色已倒下则推进到下一个存活角色，返回是否发生了移动
func (o *Order) Settle(alive AliveFunc) bool {
	if len(o.IDs) == 0 || alive(o.Current()) {
		return false
	}
	before := o.Index
	o.Advance(alive)
	return o.Index != before
}

// SortBySpeed 按速度降序稳定排序并回到开头
func (o *Order) SortBySpeed(speed func(id string) int) {
	slices.SortStableFunc(o.IDs, func(a, b string) int {
		return speed(b) - speed(a)
	})
	o.Index = 0
}

// Clone 深拷贝
func (o Order) Clone() Order {
	return Order{IDs: slices.Clone(o.IDs), Index: o.Index}
}
