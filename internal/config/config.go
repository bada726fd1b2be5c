package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// 主配置结构 - 简化命名
type Config struct {
	App       App      `yaml:"app"`
	Server    Server   `yaml:"server"`
	Database  DB       `yaml:"database"`
	Redirect  Redirect `yaml:"redirect"`
	RateLimit Limit    `yaml:"rate_limit"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Version string `yaml:"version"`
}

// 服务器配置
type Server struct {
	Port         int `yaml:"port"`
	ReadTimeout  int `yaml:"read_timeout"`
	WriteTimeout int `yaml:"write_timeout"`
}

// 数据库配置
type DB struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Name           string `yaml:"name"`
	SSLMode        string `yaml:"ssl_mode"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
}

// 重定向配置
type Redirect struct {
	FallbackURL    string   `yaml:"fallback_url"`
	ShortIDPattern string   `yaml:"short_id_pattern"`
	BlockedHosts   []string `yaml:"blocked_hosts"`
	BlockedAgents  []string `yaml:"blocked_agents"`
}

// 限流配置
type Limit struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// 默认配置，环境变量和配置文件都缺失时也能启动
func defaults() *Config {
	return &Config{
		App: App{
			Name:    "url-shortener",
			Mode:    "debug",
			Version: "1.0.0",
		},
		Server: Server{
			Port:         8080,
			ReadTimeout:  10,
			WriteTimeout: 10,
		},
		Database: DB{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Name:           "url_shortener",
			SSLMode:        "prefer",
			ConnectTimeout: 5,
			MaxOpenConns:   10,
			MaxIdleConns:   1,
		},
		Redirect: Redirect{
			FallbackURL:    "https://example.com",
			ShortIDPattern: `^[A-Za-z0-9]{6,10}$`,
		},
		RateLimit: Limit{
			MaxRequests:   60,
			WindowSeconds: 60,
		},
	}
}

// Load 加载配置：默认值 -> 配置文件 -> 环境变量，后者覆盖前者
// 配置文件不存在时仅使用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置
func applyEnv(cfg *Config) {
	envStr(&cfg.App.Mode, "APP_MODE")
	envInt(&cfg.Server.Port, "SERVER_PORT")

	envStr(&cfg.Database.Host, "DB_HOST")
	envInt(&cfg.Database.Port, "DB_PORT")
	envStr(&cfg.Database.User, "DB_USER")
	envStr(&cfg.Database.Password, "DB_PASSWORD")
	envStr(&cfg.Database.Name, "DB_NAME")
	envStr(&cfg.Database.SSLMode, "DB_SSLMODE")
	envInt(&cfg.Database.ConnectTimeout, "DB_CONNECT_TIMEOUT")

	envStr(&cfg.Redirect.FallbackURL, "FALLBACK_URL")
	envStr(&cfg.Redirect.ShortIDPattern, "SHORT_ID_PATTERN")
	envList(&cfg.Redirect.BlockedHosts, "BLOCKED_HOSTS")
	envList(&cfg.Redirect.BlockedAgents, "BLOCKED_AGENTS")

	envInt(&cfg.RateLimit.MaxRequests, "RATE_LIMIT_MAX_REQUESTS")
	envInt(&cfg.RateLimit.WindowSeconds, "RATE_LIMIT_WINDOW_SECONDS")
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// envList 解析逗号分隔的列表
func envList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
