//go:build !production

package auth

import "time"

// SetClockForTest 替换时钟
func (v *Verifier) SetClockForTest(now func() time.Time) {
	v.now = now
}
