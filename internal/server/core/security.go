// Package core 连接层的安全组件：建连限速、来源校验、IP 过滤与消息限速
package core

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ConnLimiter 按 IP 的建连速率限制，超限后封禁一段时间
type ConnLimiter struct {
	clients map[string]*connRate
	mu      sync.Mutex

	limit       rate.Limit
	burst       int
	banDuration time.Duration
	idleTTL     time.Duration
}

type connRate struct {
	limiter     *rate.Limiter
	lastSeen    time.Time
	bannedUntil time.Time
}

// NewConnLimiter 创建建连限速器
func NewConnLimiter(perSecond, burst int, banDuration time.Duration) *ConnLimiter {
	return &ConnLimiter{
		clients:     make(map[string]*connRate),
		limit:       rate.Limit(perSecond),
		burst:       max(burst, 1),
		banDuration: banDuration,
		idleTTL:     10 * time.Minute,
	}
}

// Allow 检查是否允许建立连接
func (cl *ConnLimiter) Allow(ip string) bool {
	return cl.AllowAt(ip, time.Now())
}

// AllowAt 以给定时间检查，测试可以不依赖真实时钟
func (cl *ConnLimiter) AllowAt(ip string, now time.Time) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cr, ok := cl.clients[ip]
	if !ok {
		cr = &connRate{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[ip] = cr
	}
	cr.lastSeen = now

	if now.Before(cr.bannedUntil) {
		return false
	}
	if !cr.limiter.AllowN(now, 1) {
		cr.bannedUntil = now.Add(cl.banDuration)
		logrus.WithFields(logrus.Fields{"ip": ip, "ban": cl.banDuration}).Warn("⚠️ IP 建连过于频繁，暂时封禁")
		return false
	}
	return true
}

// IsBanned 检查 IP 当前是否被封禁
func (cl *ConnLimiter) IsBanned(ip string, now time.Time) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cr, ok := cl.clients[ip]
	return ok && now.Before(cr.bannedUntil)
}

// Prune 清理长时间没有建连且未被封禁的记录，返回清理数量
func (cl *ConnLimiter) Prune(now time.Time) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	removed := 0
	for ip, cr := range cl.clients {
		if now.Sub(cr.lastSeen) > cl.idleTTL && !now.Before(cr.bannedUntil) {
			delete(cl.clients, ip)
			removed++
		}
	}
	return removed
}

// --- 来源验证 ---

// OriginChecker 来源验证器
type OriginChecker struct {
	allowedOrigins map[string]bool
	allowAll       bool
}

// NewOriginChecker 创建来源验证器，"*" 表示放行所有来源
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{
		allowedOrigins: make(map[string]bool),
	}

	for _, origin := range origins {
		if origin == "*" {
			oc.allowAll = true
			return oc
		}
		oc.allowedOrigins[strings.ToLower(strings.TrimSpace(origin))] = true
	}
	return oc
}

// Check 检查来源是否允许
func (oc *OriginChecker) Check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		// 没有 Origin 头，同源请求或非浏览器客户端
		return true
	}
	return oc.allowedOrigins[strings.ToLower(origin)]
}

// --- IP 白名单/黑名单 ---

// IPFilter IP 过滤器
type IPFilter struct {
	whitelist map[string]bool
	blacklist map[string]bool
	mu        sync.RWMutex
}

// NewIPFilter 创建 IP 过滤器
func NewIPFilter() *IPFilter {
	return &IPFilter{
		whitelist: make(map[string]bool),
		blacklist: make(map[string]bool),
	}
}

// AddToWhitelist 添加到白名单
func (f *IPFilter) AddToWhitelist(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whitelist[ip] = true
}

// AddToBlacklist 添加到黑名单
func (f *IPFilter) AddToBlacklist(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blacklist[ip] = true
}

// RemoveFromBlacklist 从黑名单移除
func (f *IPFilter) RemoveFromBlacklist(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blacklist, ip)
}

// IsAllowed 有白名单时只放行白名单，黑名单始终拒绝
func (f *IPFilter) IsAllowed(ip string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.whitelist) > 0 && !f.whitelist[ip] {
		return false
	}
	return !f.blacklist[ip]
}

// GetClientIP 获取客户端真实 IP
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// 第一个是最原始的客户端
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// --- 消息速率限制 ---

// MessageLimiter 单连接的消息限速，连续超限次数过多时应断开
type MessageLimiter struct {
	limiter     *rate.Limiter
	maxRejected int

	mu       sync.Mutex
	rejected int
}

// NewMessageLimiter 创建消息限速器
func NewMessageLimiter(perSecond, burst, maxRejected int) *MessageLimiter {
	return &MessageLimiter{
		limiter:     rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
		maxRejected: maxRejected,
	}
}

// Allow 返回是否放行以及是否应该断开连接
func (ml *MessageLimiter) Allow(now time.Time) (allowed, disconnect bool) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.limiter.AllowN(now, 1) {
		return true, false
	}
	ml.rejected++
	return false, ml.rejected > ml.maxRejected
}

// Rejected 累计被拒绝的消息数
func (ml *MessageLimiter) Rejected() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.rejected
}
