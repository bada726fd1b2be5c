package model

import (
	"time"
)

// ClickLog 点击日志，只追加，由外部分析系统消费
type ClickLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ShortID   string    `gorm:"size:10;index;not null" json:"short_id"`
	IsPublic  bool      `gorm:"not null" json:"is_public"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"size:500" json:"user_agent"`
	Referer   string    `gorm:"size:500" json:"referer"`
	Country   string    `gorm:"size:100;not null;default:''" json:"country"` // 未知时写空串，不允许 NULL
	City      string    `gorm:"size:100;not null;default:''" json:"city"`
	ClickedAt time.Time `json:"clicked_at"`
}

// TableName 指定表名
func (ClickLog) TableName() string {
	return "url_shortener_click_log"
}
