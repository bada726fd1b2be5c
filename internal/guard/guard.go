package guard

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"shorturl-redirector/internal/limiter"
)

// 拒绝原因，处理器据此决定日志级别
var (
	ErrBadShape      = errors.New("短码格式非法")
	ErrSuspicious    = errors.New("路径包含可疑内容")
	ErrBlockedAgent  = errors.New("User-Agent 命中黑名单")
	ErrHeaderAnomaly = errors.New("X-Forwarded-For 跳数异常")
	ErrThrottled     = errors.New("请求频率超限")
)

// 可疑子串扫描，与短码正则互为兜底
var suspiciousMarkers = []string{"../", "<script", "javascript:", "eval(", "exec("}

// 默认的 User-Agent 黑名单
var defaultBlockedAgents = []string{"bot", "crawler", "spider", "scraper", "curl", "wget", "python-requests"}

// X-Forwarded-For 超过该跳数视为隧道探测
const maxForwardedHops = 3

// Guard 请求准入闸门，按顺序执行各项检查
type Guard struct {
	pattern       *regexp.Regexp
	blockedAgents []string
	limiter       *limiter.Limiter
}

// New 创建 Guard；blockedAgents 为空时使用默认黑名单
func New(shortIDPattern string, blockedAgents []string, lim *limiter.Limiter) (*Guard, error) {
	re, err := regexp.Compile(shortIDPattern)
	if err != nil {
		return nil, fmt.Errorf("短码正则无效: %v", err)
	}
	if len(blockedAgents) == 0 {
		blockedAgents = defaultBlockedAgents
	}
	return &Guard{
		pattern:       re,
		blockedAgents: blockedAgents,
		limiter:       lim,
	}, nil
}

// Admit 依次执行：短码形状 -> 可疑子串 -> UA 黑名单 -> 报文头异常 -> 限流
// 任何一道闸门拒绝即返回对应错误
func (g *Guard) Admit(r *http.Request, shortID, ip string) error {
	if !g.pattern.MatchString(shortID) {
		return ErrBadShape
	}

	lowered := strings.ToLower(shortID)
	for _, marker := range suspiciousMarkers {
		if strings.Contains(lowered, marker) {
			return ErrSuspicious
		}
	}

	agent := strings.ToLower(r.UserAgent())
	for _, marker := range g.blockedAgents {
		if strings.Contains(agent, strings.ToLower(marker)) {
			return ErrBlockedAgent
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if len(strings.Split(xff, ",")) > maxForwardedHops {
			return ErrHeaderAnomaly
		}
	}

	if g.limiter != nil && !g.limiter.Allow(ip) {
		return ErrThrottled
	}

	return nil
}

// ClientIP 提取客户端 IP
// 优先级：X-Forwarded-For 首值 -> X-Real-IP -> 连接远端地址 -> "unknown"
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
