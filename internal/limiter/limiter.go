package limiter

import (
	"sync"
	"time"
)

// DefaultMaxTrackedIPs 跟踪的 IP 数量上限，防止扫描器撑爆内存
const DefaultMaxTrackedIPs = 10000

// Limiter 基于滑动窗口的进程内限流器
// 每个 IP 维护窗口内的请求时间戳；持续超限的 IP 会被提升到黑名单，
// 黑名单在进程生命周期内不过期
type Limiter struct {
	mu         sync.Mutex
	window     time.Duration
	max        int
	maxTracked int
	visitors   map[string][]time.Time
	blocklist  map[string]struct{}
	now        func() time.Time // 测试时可注入
}

// New 创建限流器，maxRequests 为窗口内允许的请求数
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		window:     window,
		max:        maxRequests,
		maxTracked: DefaultMaxTrackedIPs,
		visitors:   make(map[string][]time.Time),
		blocklist:  make(map[string]struct{}),
		now:        time.Now,
	}
}

// Allow 判断该 IP 的本次请求是否放行
// 被拒绝的请求同样计入窗口，持续施压会触发黑名单提升
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, banned := l.blocklist[ip]; banned {
		return false
	}

	now := l.now()
	times := prune(l.visitors[ip], now.Add(-l.window))

	if len(times) >= l.max {
		// 达到两倍阈值说明是持续滥用，提升为永久拒绝
		if len(times) >= 2*l.max {
			l.blocklist[ip] = struct{}{}
			delete(l.visitors, ip)
			return false
		}
		l.visitors[ip] = append(times, now)
		return false
	}

	if _, tracked := l.visitors[ip]; !tracked && len(l.visitors) >= l.maxTracked {
		l.evict(now)
	}
	l.visitors[ip] = append(times, now)
	return true
}

// IsBlocked 查询某 IP 是否已进入黑名单
func (l *Limiter) IsBlocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, banned := l.blocklist[ip]
	return banned
}

// prune 去掉窗口之外的时间戳
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// evict 清理静默 IP；若全部活跃则随机淘汰一个
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	for ip, times := range l.visitors {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.visitors, ip)
		}
	}
	if len(l.visitors) >= l.maxTracked {
		for ip := range l.visitors {
			delete(l.visitors, ip)
			break
		}
	}
}
