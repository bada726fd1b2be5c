package safeurl

import (
	"net/url"
	"strings"
)

// 内置的危险主机名片段：回环地址、内网网段、链路本地地址
var unsafeHostMarkers = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"10.",
	"192.168.",
	"172.16.",
	"172.17.",
	"169.254.",
}

// IsSafe 判断目标地址是否可以安全跳转
// 要求：绝对 URL、协议为 http/https、主机名不含内置或配置的黑名单片段
func IsSafe(raw string, blockedHosts []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Host)
	if host == "" {
		return false
	}

	for _, marker := range unsafeHostMarkers {
		if strings.Contains(host, marker) {
			return false
		}
	}
	for _, marker := range blockedHosts {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker != "" && strings.Contains(host, marker) {
			return false
		}
	}

	return true
}
