package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"shorturl-redirector/internal/model"
)

// ErrNotFound 没有可解析的行（不存在、未激活或已过期）
var ErrNotFound = errors.New("短链接不存在或已失效")

// 写入点击日志时的字段截断上限，对应表结构
const (
	maxIPLen      = 45
	maxUserAgent  = 500
	maxRefererLen = 500
)

// Destination 解析结果
type Destination struct {
	ShortID     string
	OriginalURL string
	IsPublic    bool
}

// Store 持久层适配器，持有连接池并提供原子的解析加追踪操作
type Store struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// New 创建 Store 实例
func New(db *gorm.DB, logger *zap.SugaredLogger) *Store {
	return &Store{
		db:     db,
		logger: logger.Named("store"),
	}
}

// 同时查私有表和公共表，各自过滤激活且未过期的行
// ORDER BY is_public 保证两表撞码时私有表确定性胜出
const lookupSQL = `
SELECT short_id, original_url, is_public FROM (
	SELECT short_id, original_url, FALSE AS is_public
	FROM url_shortener_shorturl
	WHERE short_id = ? AND is_active = ? AND (expires_at IS NULL OR expires_at > ?)
	UNION ALL
	SELECT short_id, original_url, TRUE AS is_public
	FROM url_shortener_public_shorturl
	WHERE short_id = ? AND is_active = ? AND expires_at > ?
) AS candidates
ORDER BY is_public
LIMIT 1`

// ResolveAndTrack 在单个事务内完成：查找 -> 计数自增 -> 点击日志插入
// 三个写入要么全部提交，要么全部回滚；短码未命中返回 ErrNotFound
func (s *Store) ResolveAndTrack(ctx context.Context, shortID, ip, userAgent, referer string) (*Destination, error) {
	var dest Destination

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var row struct {
			ShortID     string
			OriginalURL string
			IsPublic    bool
		}
		result := tx.Raw(lookupSQL, shortID, true, now, shortID, true, now).Scan(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		updates := map[string]interface{}{
			"click_count":  gorm.Expr("click_count + 1"),
			"last_clicked": now,
		}
		var updated *gorm.DB
		if row.IsPublic {
			updated = tx.Model(&model.PublicShortURL{}).Where("short_id = ?", row.ShortID).Updates(updates)
		} else {
			updated = tx.Model(&model.ShortURL{}).Where("short_id = ?", row.ShortID).Updates(updates)
		}
		if updated.Error != nil {
			return updated.Error
		}

		entry := model.ClickLog{
			ShortID:   row.ShortID,
			IsPublic:  row.IsPublic,
			IPAddress: truncate(ip, maxIPLen),
			UserAgent: truncate(userAgent, maxUserAgent),
			Referer:   truncate(referer, maxRefererLen),
			Country:   "", // 未做地理解析，按表约定写空串
			City:      "",
			ClickedAt: now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		dest = Destination{
			ShortID:     row.ShortID,
			OriginalURL: row.OriginalURL,
			IsPublic:    row.IsPublic,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Errorw("解析事务已回滚", "short_id", shortID, "error", err)
		return nil, fmt.Errorf("解析事务失败: %w", err)
	}
	return &dest, nil
}

// Ping 健康检查用的最小读探针
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// truncate 按字节截断超长字段
func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
