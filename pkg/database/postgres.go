package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Options 数据库连接配置
type Options struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	ConnectTimeout int // 秒
	MaxOpenConns   int
	MaxIdleConns   int
}

// InitPostgres 建立 PostgreSQL 连接并设置连接池边界
// 表结构由管理端应用维护，这里不做迁移
func InitPostgres(opts *Options) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		opts.Host, opts.Port, opts.User, opts.Password, opts.Name, opts.SSLMode, opts.ConnectTimeout)

	connection, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %v", err)
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %v", err)
	}

	// 连接池边界：空闲下限小，并发上限适中
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return connection, nil
}
