package core

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestConnLimiter_Allow(t *testing.T) {
	t.Parallel()

	// 5 次突发，1 次/秒，封禁 10 秒
	cl := NewConnLimiter(1, 5, 10*time.Second)
	ip := "127.0.0.1"

	for i := range 5 {
		assert.True(t, cl.AllowAt(ip, t0), "Request %d should be allowed", i)
	}

	// 第 6 次超出突发
	assert.False(t, cl.AllowAt(ip, t0))
	assert.True(t, cl.IsBanned(ip, t0))

	// 封禁期内令牌恢复也不放行
	assert.False(t, cl.AllowAt(ip, t0.Add(5*time.Second)))

	// 封禁结束
	assert.False(t, cl.IsBanned(ip, t0.Add(11*time.Second)))
	assert.True(t, cl.AllowAt(ip, t0.Add(11*time.Second)))
}

func TestConnLimiter_PerIP(t *testing.T) {
	t.Parallel()

	cl := NewConnLimiter(1, 1, time.Second)
	assert.True(t, cl.AllowAt("10.0.0.1", t0))
	assert.False(t, cl.AllowAt("10.0.0.1", t0))
	assert.True(t, cl.AllowAt("10.0.0.2", t0), "other IPs are unaffected")
}

func TestConnLimiter_Concurrency(t *testing.T) {
	t.Parallel()

	cl := NewConnLimiter(1, 50, time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cl.AllowAt("192.168.1.1", t0) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestConnLimiter_Prune(t *testing.T) {
	t.Parallel()

	cl := NewConnLimiter(1, 1, 5*time.Minute)
	cl.AllowAt("idle", t0)
	cl.AllowAt("banned", t0.Add(10*time.Minute))
	cl.AllowAt("banned", t0.Add(10*time.Minute))

	removed := cl.Prune(t0.Add(11 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.True(t, cl.IsBanned("banned", t0.Add(11*time.Minute)))
}

func TestIPFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ip      string
		setup   func(*IPFilter)
		allowed bool
	}{
		{
			name:    "Default allow",
			ip:      "192.168.1.1",
			setup:   func(f *IPFilter) {},
			allowed: true,
		},
		{
			name: "Blacklisted IP",
			ip:   "192.168.1.2",
			setup: func(f *IPFilter) {
				f.AddToBlacklist("192.168.1.2")
			},
			allowed: false,
		},
		{
			name: "Removed from blacklist",
			ip:   "192.168.1.3",
			setup: func(f *IPFilter) {
				f.AddToBlacklist("192.168.1.3")
				f.RemoveFromBlacklist("192.168.1.3")
			},
			allowed: true,
		},
		{
			name: "Whitelist enforcement (IP not in whitelist)",
			ip:   "192.168.1.4",
			setup: func(f *IPFilter) {
				f.AddToWhitelist("10.0.0.1")
			},
			allowed: false,
		},
		{
			name: "Whitelist enforcement (IP in whitelist)",
			ip:   "10.0.0.1",
			setup: func(f *IPFilter) {
				f.AddToWhitelist("10.0.0.1")
			},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := NewIPFilter()
			tt.setup(f)
			assert.Equal(t, tt.allowed, f.IsAllowed(tt.ip))
		})
	}
}

func TestGetClientIP_ProxyHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expectedIP string
	}{
		{
			name:       "Direct connection",
			remoteAddr: "192.168.1.1:12345",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For multiple IPs",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2, 10.0.0.3"},
			expectedIP: "203.0.113.1",
		},
		{
			name:       "X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			expectedIP: "203.0.113.2",
		},
		{
			name:       "X-Forwarded-For takes precedence over X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.3", "X-Real-IP": "203.0.113.4"},
			expectedIP: "203.0.113.3",
		},
		{
			name:       "Remote addr without port",
			remoteAddr: "pipe",
			expectedIP: "pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, _ := http.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expectedIP, GetClientIP(req))
		})
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	all := NewOriginChecker([]string{"*"})
	req, _ := http.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Origin", "https://evil.com")
	assert.True(t, all.Check(req))

	oc := NewOriginChecker([]string{"https://example.com", "https://App.example.com"})
	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://example.com", true},
		{"https://app.example.com", true},
		{"https://evil.com", false},
		{"http://example.com", false},
		{"", true},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, "/", http.NoBody)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.allowed, oc.Check(req), "Origin: %s", tt.origin)
	}
}

func TestMessageLimiter(t *testing.T) {
	t.Parallel()

	ml := NewMessageLimiter(1, 3, 2)
	for i := range 3 {
		allowed, disconnect := ml.Allow(t0)
		assert.True(t, allowed, "message %d", i)
		assert.False(t, disconnect)
	}

	allowed, disconnect := ml.Allow(t0)
	assert.False(t, allowed)
	assert.False(t, disconnect)
	ml.Allow(t0)
	_, disconnect = ml.Allow(t0)
	assert.True(t, disconnect, "third rejection exceeds the limit")
	assert.Equal(t, 3, ml.Rejected())

	// 令牌恢复后重新放行
	allowed, _ = ml.Allow(t0.Add(time.Second))
	assert.True(t, allowed)
}
