package model

import (
	"time"
)

// ShortURL 私有短链接模型
// 行由管理端应用创建，本服务只读取并更新点击计数
type ShortURL struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	ShortID     string     `gorm:"size:10;uniqueIndex;not null" json:"short_id"`
	OriginalURL string     `gorm:"type:text;not null" json:"original_url"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"` // 为空表示永不过期
	ClickCount  int64      `gorm:"default:0" json:"click_count"`
	LastClicked *time.Time `json:"last_clicked"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName 指定表名
func (ShortURL) TableName() string {
	return "url_shortener_shorturl"
}

// PublicShortURL 公共短链接模型，过期时间必填
type PublicShortURL struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	ShortID     string     `gorm:"size:10;uniqueIndex;not null" json:"short_id"`
	OriginalURL string     `gorm:"type:text;not null" json:"original_url"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	ClickCount  int64      `gorm:"default:0" json:"click_count"`
	LastClicked *time.Time `json:"last_clicked"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName 指定表名
func (PublicShortURL) TableName() string {
	return "url_shortener_public_shorturl"
}
