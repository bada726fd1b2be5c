package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shorturl-redirector/internal/guard"
	"shorturl-redirector/internal/safeurl"
	"shorturl-redirector/internal/store"
)

// 健康检查中上报的服务标识
const (
	serviceName    = "url-shortener"
	serviceVersion = "1.0.0"
)

// 单次请求的总预算，超时按兜底处理
const defaultBudget = 500 * time.Millisecond

// 日志中短码和目标地址的截断长度
const logFieldLimit = 100

// RedirectHandler 重定向处理器
// 公开路径上永远不返回 4xx/5xx，一切异常都改写为 301 到兜底地址
type RedirectHandler struct {
	store        *store.Store
	guard        *guard.Guard
	blockedHosts []string
	fallbackURL  string
	budget       time.Duration
	logger       *zap.SugaredLogger
}

// NewRedirectHandler 创建处理器实例
func NewRedirectHandler(st *store.Store, g *guard.Guard, blockedHosts []string, fallbackURL string, logger *zap.SugaredLogger) *RedirectHandler {
	return &RedirectHandler{
		store:        st,
		guard:        g,
		blockedHosts: blockedHosts,
		fallbackURL:  fallbackURL,
		budget:       defaultBudget,
		logger:       logger.Named("redirect"),
	}
}

// Redirect 处理 GET /:code
// 流程：准入检查 -> 解析并记录点击 -> 目标安全校验 -> 301
func (h *RedirectHandler) Redirect(c *gin.Context) {
	start := time.Now()
	shortID := c.Param("code")
	ip := guard.ClientIP(c.Request)
	userAgent := c.Request.UserAgent()
	referer := c.Request.Referer()

	if err := h.guard.Admit(c.Request, shortID, ip); err != nil {
		h.logger.Warnw("请求被拦截",
			"reason", err.Error(),
			"ip", ip,
			"short_id", clip(shortID, logFieldLimit),
		)
		h.fallback(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.budget)
	defer cancel()

	dest, err := h.store.ResolveAndTrack(ctx, shortID, ip, userAgent, referer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Infow("短码未命中", "ip", ip, "short_id", clip(shortID, logFieldLimit))
		} else {
			h.logger.Errorw("存储层失败", "error", err, "ip", ip, "short_id", clip(shortID, logFieldLimit))
		}
		h.fallback(c)
		return
	}

	// 计数已提交，不安全的目标只拦截跳转，不做补偿回滚
	if !safeurl.IsSafe(dest.OriginalURL, h.blockedHosts) {
		h.logger.Errorw("目标地址不安全",
			"ip", ip,
			"short_id", dest.ShortID,
			"target", clip(dest.OriginalURL, logFieldLimit),
		)
		h.fallback(c)
		return
	}

	c.Redirect(http.StatusMovedPermanently, dest.OriginalURL)
	h.logger.Infow("重定向成功",
		"ip", ip,
		"target", clip(dest.OriginalURL, logFieldLimit),
		"latency", time.Since(start),
	)
}

// Index 根路径同样跳到兜底地址
func (h *RedirectHandler) Index(c *gin.Context) {
	h.fallback(c)
}

// Fallback 未匹配路由的统一出口
func (h *RedirectHandler) Fallback(c *gin.Context) {
	h.fallback(c)
}

// HealthCheck 健康检查，唯一允许返回非 301 的公开路径
func (h *RedirectHandler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":    "healthy",
		"timestamp": float64(time.Now().UnixNano()) / 1e9,
		"service":   serviceName,
		"version":   serviceVersion,
	}

	if h.store == nil {
		resp["status"] = "unhealthy"
		resp["error"] = "no database"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Errorw("健康检查失败", "error", err)
		resp["status"] = "unhealthy"
		resp["error"] = "database unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RedirectHandler) fallback(c *gin.Context) {
	c.Redirect(http.StatusMovedPermanently, h.fallbackURL)
	c.Abort()
}

// clip 日志字段截断
func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
