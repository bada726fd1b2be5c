package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shorturl-redirector/internal/guard"
	"shorturl-redirector/internal/limiter"
	"shorturl-redirector/internal/model"
	"shorturl-redirector/internal/store"
)

const testFallback = "https://fallback.example.net"

var handlerDBSeq int64

// setupTest 为集成测试初始化一个干净的环境
// 返回配置好的 gin.Engine 和底层数据库句柄
func setupTest(t *testing.T, maxRequests int) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler_test_%d?mode=memory&cache=shared", atomic.AddInt64(&handlerDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "无法连接到内存数据库")

	err = db.AutoMigrate(&model.ShortURL{}, &model.PublicShortURL{}, &model.ClickLog{})
	require.NoError(t, err, "数据库迁移失败")

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	logger, _ := zap.NewDevelopment()
	sugaredLogger := logger.Sugar()

	urlStore := store.New(db, sugaredLogger)
	rateLimiter := limiter.New(maxRequests, time.Minute)
	requestGuard, err := guard.New(`^[A-Za-z0-9]{6,10}$`, nil, rateLimiter)
	require.NoError(t, err)

	h := NewRedirectHandler(urlStore, requestGuard, []string{"evil-brand.com"}, testFallback, sugaredLogger)

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.GET("/", h.Index)
	router.GET("/health", h.HealthCheck)
	router.GET("/:code", h.Redirect)
	router.NoRoute(h.Fallback)
	router.NoMethod(h.Fallback)

	return router, db
}

// doGet 以浏览器身份发起请求
func doGet(router *gin.Engine, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestRedirectHappyPath 命中短码：301 到目标地址，计数加一，留一条点击日志
func TestRedirectHappyPath(t *testing.T) {
	router, db := setupTest(t, 1000)

	require.NoError(t, db.Create(&model.ShortURL{ShortID: "abc123", OriginalURL: "https://example.com/landing", IsActive: true}).Error)

	w := doGet(router, "/abc123", "203.0.113.7")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://example.com/landing", w.Header().Get("Location"))

	var row model.ShortURL
	require.NoError(t, db.Where("short_id = ?", "abc123").First(&row).Error)
	assert.EqualValues(t, 1, row.ClickCount)
	assert.NotNil(t, row.LastClicked)

	var logs []model.ClickLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "203.0.113.7", logs[0].IPAddress)
	assert.Equal(t, "Mozilla/5.0", logs[0].UserAgent)
}

// TestRedirectUnknownID 未知短码：301 到兜底地址，无任何写入
func TestRedirectUnknownID(t *testing.T) {
	router, db := setupTest(t, 1000)

	w := doGet(router, "/zzzzzz", "203.0.113.7")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, testFallback, w.Header().Get("Location"))

	var count int64
	db.Model(&model.ClickLog{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

// TestRedirectExpiredPublic 过期的公共短码按未命中处理
func TestRedirectExpiredPublic(t *testing.T) {
	router, db := setupTest(t, 1000)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Create(&model.PublicShortURL{ShortID: "pub001", OriginalURL: "https://example.org/old", IsActive: true, ExpiresAt: past}).Error)

	w := doGet(router, "/pub001", "203.0.113.7")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, testFallback, w.Header().Get("Location"))

	var count int64
	db.Model(&model.ClickLog{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

// TestRedirectBadShape 形状不合法的短码不触达存储层
func TestRedirectBadShape(t *testing.T) {
	router, db := setupTest(t, 1000)

	for _, path := range []string{"/abc!", "/ab", "/abcdefghijkl", "/abc.php"} {
		w := doGet(router, path, "203.0.113.7")
		assert.Equal(t, http.StatusMovedPermanently, w.Code, "path=%q", path)
		assert.Equal(t, testFallback, w.Header().Get("Location"), "path=%q", path)
	}

	var count int64
	db.Model(&model.ClickLog{}).Count(&count)
	assert.EqualValues(t, 0, count, "被闸门拦截的请求不应留下点击日志")
}

// TestRedirectRateLimited 超过限流阈值后改走兜底
func TestRedirectRateLimited(t *testing.T) {
	router, db := setupTest(t, 2)

	require.NoError(t, db.Create(&model.ShortURL{ShortID: "abc123", OriginalURL: "https://example.com/landing", IsActive: true}).Error)

	for i := 0; i < 2; i++ {
		w := doGet(router, "/abc123", "198.51.100.9")
		assert.Equal(t, "https://example.com/landing", w.Header().Get("Location"))
	}

	w := doGet(router, "/abc123", "198.51.100.9")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, testFallback, w.Header().Get("Location"))

	// 其他 IP 不受影响
	w = doGet(router, "/abc123", "203.0.113.7")
	assert.Equal(t, "https://example.com/landing", w.Header().Get("Location"))
}

// TestRedirectUnsafeDestination 不安全目标：拦截跳转，但计数和日志照常落库
func TestRedirectUnsafeDestination(t *testing.T) {
	router, db := setupTest(t, 1000)

	require.NoError(t, db.Create(&model.ShortURL{ShortID: "evil01", OriginalURL: "http://127.0.0.1/admin", IsActive: true}).Error)

	w := doGet(router, "/evil01", "203.0.113.7")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, testFallback, w.Header().Get("Location"))

	// 事务在校验之前已提交，这是接受的计数漂移
	var row model.ShortURL
	require.NoError(t, db.Where("short_id = ?", "evil01").First(&row).Error)
	assert.EqualValues(t, 1, row.ClickCount)

	var count int64
	db.Model(&model.ClickLog{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

// TestRedirectBlockedBrand 配置的品牌黑名单同样拦截
func TestRedirectBlockedBrand(t *testing.T) {
	router, db := setupTest(t, 1000)

	require.NoError(t, db.Create(&model.ShortURL{ShortID: "brand1", OriginalURL: "https://evil-brand.com/promo", IsActive: true}).Error)

	w := doGet(router, "/brand1", "203.0.113.7")
	assert.Equal(t, testFallback, w.Header().Get("Location"))
}

// TestRedirectBlockedAgent 爬虫 UA 直接走兜底
func TestRedirectBlockedAgent(t *testing.T) {
	router, db := setupTest(t, 1000)

	require.NoError(t, db.Create(&model.ShortURL{ShortID: "abc123", OriginalURL: "https://example.com/landing", IsActive: true}).Error)

	req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
	req.Header.Set("User-Agent", "Googlebot/2.1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, testFallback, w.Header().Get("Location"))
}

// TestIndexAndNoRoute 根路径和未匹配路径都 301 到兜底，不出现 4xx/5xx
func TestIndexAndNoRoute(t *testing.T) {
	router, _ := setupTest(t, 1000)

	for _, path := range []string{"/", "/a/b/c", "/abc123/extra"} {
		w := doGet(router, path, "203.0.113.7")
		assert.Equal(t, http.StatusMovedPermanently, w.Code, "path=%q", path)
		assert.Equal(t, testFallback, w.Header().Get("Location"), "path=%q", path)
	}
}

// TestMethodNotAllowed 不支持的方法同样 301 到兜底，且不触达存储层
func TestMethodNotAllowed(t *testing.T) {
	router, db := setupTest(t, 1000)

	require.NoError(t, db.Create(&model.ShortURL{ShortID: "abc123", OriginalURL: "https://example.com/landing", IsActive: true}).Error)

	req := httptest.NewRequest(http.MethodPost, "/abc123", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, testFallback, w.Header().Get("Location"))

	var count int64
	db.Model(&model.ClickLog{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

// TestHealthCheck 健康检查返回约定的 JSON 形状
func TestHealthCheck(t *testing.T) {
	router, _ := setupTest(t, 1000)

	w := doGet(router, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "url-shortener", resp["service"])
	assert.Equal(t, "1.0.0", resp["version"])

	ts, ok := resp["timestamp"].(float64)
	require.True(t, ok, "timestamp 应为数字")
	assert.InDelta(t, float64(time.Now().Unix()), ts, 5)
}

// TestHealthCheckUnhealthy 数据库不可达时返回 503 和错误标签
func TestHealthCheckUnhealthy(t *testing.T) {
	router, db := setupTest(t, 1000)

	// 直接关掉连接池模拟存储故障
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := doGet(router, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp["status"])
	assert.NotEmpty(t, resp["error"])
}
