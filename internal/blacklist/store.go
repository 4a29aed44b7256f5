package blacklist

import (
	"context"
	"errors"
	"time"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/internal/repository"
	"github.com/fisker/zaudit-backend/pkg/logger"
	pkgredis "github.com/fisker/zaudit-backend/pkg/redis"
	"gorm.io/gorm"
)

var (
	// ErrRuleNotFound 规则不存在
	ErrRuleNotFound = errors.New("rule not found")
	// ErrInvalidAction 规则动作不合法（只允许 block/warn/log）
	ErrInvalidAction = errors.New("invalid action")
)

// normalizeAction 规范规则动作：空值取默认的 block，非法值拒绝
func normalizeAction(action string) (string, error) {
	if action == "" {
		return model.ActionBlock, nil
	}
	if !model.ValidAction(action) {
		return "", ErrInvalidAction
	}
	return action, nil
}

// reloadChannel 多实例部署时规则变更通知使用的 Redis 频道
const reloadChannel = "zaudit:blacklist:changed"

// Store 黑名单规则存储
// 负责规则的校验与持久化；任何成功的增删改都会立即发布新快照，
// 并通过 Redis 通知其他实例刷新（未启用 Redis 时依赖兜底刷新）
type Store struct {
	repo            *repository.BlacklistRepository
	cache           *Cache
	probeBudget     time.Duration
	refreshInterval time.Duration
	stopChan        chan struct{}
}

// Config 规则存储配置
type Config struct {
	ProbeBudget     time.Duration // 写入时安全探测预算
	RefreshInterval time.Duration // 兜底刷新间隔
}

// NewStore 创建规则存储并加载初始快照
// 规则表为空时写入一组保守的默认规则
func NewStore(repo *repository.BlacklistRepository, cache *Cache, cfg Config) (*Store, error) {
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 100 * time.Millisecond
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}

	s := &Store{
		repo:            repo,
		cache:           cache,
		probeBudget:     cfg.ProbeBudget,
		refreshInterval: cfg.RefreshInterval,
		stopChan:        make(chan struct{}),
	}

	count, err := repo.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		s.seedDefaultRules()
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// Create 创建规则
// 模式在写入前完成编译与安全探测；非法模式返回 ErrInvalidPattern，
// 不会进入存储，更不会进入缓存
func (s *Store) Create(rule *model.BlacklistRule) error {
	if err := ValidatePattern(rule.Pattern, s.probeBudget); err != nil {
		return err
	}
	action, err := normalizeAction(rule.Action)
	if err != nil {
		return err
	}
	rule.Action = action

	if err := s.repo.Create(rule); err != nil {
		return err
	}

	s.publishChange()
	logger.Infof("[Blacklist] Rule %d created: pattern=%q action=%s enabled=%v",
		rule.ID, rule.Pattern, rule.Action, rule.Enabled)
	return nil
}

// Update 更新规则
func (s *Store) Update(id uint64, req *model.BlacklistRule) error {
	rule, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRuleNotFound
		}
		return err
	}

	if err := ValidatePattern(req.Pattern, s.probeBudget); err != nil {
		return err
	}
	action, err := normalizeAction(req.Action)
	if err != nil {
		return err
	}

	rule.Pattern = req.Pattern
	rule.Description = req.Description
	rule.Action = action
	rule.Enabled = req.Enabled

	if err := s.repo.Save(rule); err != nil {
		return err
	}

	s.publishChange()
	logger.Infof("[Blacklist] Rule %d updated: pattern=%q action=%s enabled=%v",
		rule.ID, rule.Pattern, rule.Action, rule.Enabled)
	return nil
}

// Delete 删除规则（硬删除，评估只使用快照，不存在悬挂引用）
func (s *Store) Delete(id uint64) error {
	affected, err := s.repo.Delete(id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRuleNotFound
	}

	s.publishChange()
	logger.Infof("[Blacklist] Rule %d deleted", id)
	return nil
}

// List 按 ID 升序返回所有规则
func (s *Store) List() ([]model.BlacklistRule, error) {
	return s.repo.FindAll()
}

// SnapshotVersion 当前生效的快照版本
func (s *Store) SnapshotVersion() uint64 {
	return s.cache.Current().Version
}

// Reload 从数据库重新加载规则并发布新快照
func (s *Store) Reload() error {
	rules, err := s.repo.FindAll()
	if err != nil {
		return err
	}
	snapshot := s.cache.Publish(rules)
	logger.Infof("[Blacklist] Snapshot v%d published with %d enabled rules", snapshot.Version, len(snapshot.Rules))
	return nil
}

// Start 启动兜底刷新循环和 Redis 订阅
func (s *Store) Start() {
	go s.refreshLoop()
	if pkgredis.IsEnabled() {
		go s.subscribeLoop()
	}
}

// Stop 停止后台循环
func (s *Store) Stop() {
	close(s.stopChan)
}

// publishChange 本地立即发布新快照，并通知其他实例
func (s *Store) publishChange() {
	if err := s.Reload(); err != nil {
		logger.Errorf("[Blacklist] Failed to reload after mutation: %v", err)
	}

	if pkgredis.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := pkgredis.Client.Publish(ctx, reloadChannel, "reload").Err(); err != nil {
			logger.Warnf("[Blacklist] Failed to notify peers via Redis: %v", err)
		}
	}
}

// refreshLoop 兜底刷新：即使错过了变更通知，快照也会在一个周期内收敛
func (s *Store) refreshLoop() {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				logger.Errorf("[Blacklist] Periodic refresh failed: %v", err)
			}
		case <-s.stopChan:
			logger.Infof("[Blacklist] Refresh loop stopped")
			return
		}
	}
}

// subscribeLoop 订阅其他实例发来的规则变更通知
func (s *Store) subscribeLoop() {
	pubsub := pkgredis.Client.Subscribe(context.Background(), reloadChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				logger.Warnf("[Blacklist] Redis subscription closed")
				return
			}
			logger.Debugf("[Blacklist] Reload notification received: %s", msg.Payload)
			if err := s.Reload(); err != nil {
				logger.Errorf("[Blacklist] Reload on notification failed: %v", err)
			}
		case <-s.stopChan:
			return
		}
	}
}

// seedDefaultRules 首次启动时写入默认规则
// 动作取保守值：只对明确的破坏性命令阻断，其余告警
func (s *Store) seedDefaultRules() {
	defaults := []model.BlacklistRule{
		{Pattern: `^rm\s+(-[a-zA-Z]*[rf][a-zA-Z]*\s+)+/`, Description: "递归强制删除根路径", Action: model.ActionBlock, Enabled: true},
		{Pattern: `^dd\s+.*of=/dev/`, Description: "直接写入块设备", Action: model.ActionBlock, Enabled: true},
		{Pattern: `^mkfs(\.\w+)?\s`, Description: "格式化文件系统", Action: model.ActionBlock, Enabled: true},
		{Pattern: `^(reboot|shutdown|halt|poweroff)\b`, Description: "重启或关闭系统", Action: model.ActionWarn, Enabled: true},
		{Pattern: `^rm\s`, Description: "删除文件", Action: model.ActionLog, Enabled: true},
	}

	for i := range defaults {
		if err := s.repo.Create(&defaults[i]); err != nil {
			logger.Warnf("[Blacklist] Failed to seed default rule %q: %v", defaults[i].Pattern, err)
		}
	}
	logger.Infof("[Blacklist] Seeded %d default rules", len(defaults))
}
