// Package nodes 维护已知节点：地址白名单与可选的节点目录。
package nodes

import (
	"strings"
)

// DefaultAddresses 现场部署的两台节点
var DefaultAddresses = []string{
	"68:5E:1C:1A:68:CF",
	"68:5E:1C:1A:5A:30",
}

// AllowList 只读的规范化地址集合
type AllowList struct {
	entries []string // 规范化后的条目，保持配置顺序
	raw     []string
}

// Normalize 去掉冒号/短横线并转大写
func Normalize(addr string) string {
	r := strings.NewReplacer(":", "", "-", "")
	return strings.ToUpper(strings.TrimSpace(r.Replace(addr)))
}

// NewAllowList 去重并丢弃空条目
func NewAllowList(addrs ...string) *AllowList {
	a := &AllowList{}
	seen := make(map[string]bool, len(addrs))
	for _, s := range addrs {
		n := Normalize(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		a.entries = append(a.entries, n)
		a.raw = append(a.raw, strings.TrimSpace(s))
	}
	return a
}

// Match 地址（规范化后）包含任一条目即命中，返回命中的原始条目
func (a *AllowList) Match(addr string) (string, bool) {
	if a == nil {
		return "", false
	}
	n := Normalize(addr)
	if n == "" {
		return "", false
	}
	for i, e := range a.entries {
		if strings.Contains(n, e) {
			return a.raw[i], true
		}
	}
	return "", false
}

// Len 条目数
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// Entries 原始条目副本
func (a *AllowList) Entries() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.raw...)
}
