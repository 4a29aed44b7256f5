package blacklist

import (
	"regexp"
	"sort"
	"sync/atomic"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/pkg/logger"
	"github.com/fisker/zaudit-backend/pkg/metrics"
)

// CompiledRule 编译后的黑名单规则
type CompiledRule struct {
	ID          uint64
	Pattern     string
	Description string
	Action      string
	re          *regexp.Regexp
}

// Snapshot 不可变的规则快照
// 每次规则变更发布一份全新快照，评估过程全程使用同一份快照，
// 不会观察到"一半新一半旧"的规则集
type Snapshot struct {
	Version uint64
	Rules   []CompiledRule // 按 ID 升序
}

// Cache 进程级规则缓存
// 读路径无锁：原子交换快照指针，版本号单调递增
type Cache struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewCache 创建规则缓存（初始为空快照）
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(&Snapshot{Version: 0, Rules: nil})
	return c
}

// Current 获取当前快照
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Publish 用给定规则集发布新快照，返回发布后的快照
// 只编译启用的规则；编译失败的规则跳过（正常情况下写入时已校验，不会发生）
func (c *Cache) Publish(rules []model.BlacklistRule) *Snapshot {
	compiled := make([]CompiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			logger.Warnf("[Blacklist] Skipping rule %d with uncompilable pattern %q: %v", rule.ID, rule.Pattern, err)
			continue
		}
		compiled = append(compiled, CompiledRule{
			ID:          rule.ID,
			Pattern:     rule.Pattern,
			Description: rule.Description,
			Action:      rule.Action,
			re:          re,
		})
	}

	// ID 升序即评估优先级，发布时排好序，评估路径不再排序
	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].ID < compiled[j].ID
	})

	snapshot := &Snapshot{
		Version: c.version.Add(1),
		Rules:   compiled,
	}
	c.current.Store(snapshot)

	metrics.BlacklistRules.Set(float64(len(compiled)))
	metrics.BlacklistSnapshotVersion.Set(float64(snapshot.Version))

	return snapshot
}
