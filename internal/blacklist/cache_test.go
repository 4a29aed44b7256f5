package blacklist

import (
	"sync"
	"testing"

	"github.com/fisker/zaudit-backend/internal/model"
)

// TestCachePublish 测试快照发布
func TestCachePublish(t *testing.T) {
	cache := NewCache()

	if got := cache.Current().Version; got != 0 {
		t.Fatalf("初始快照版本 = %d, 应该是 0", got)
	}

	rules := []model.BlacklistRule{
		{ID: 3, Pattern: `mkfs`, Action: model.ActionBlock, Enabled: true},
		{ID: 1, Pattern: `^rm\s+-rf`, Action: model.ActionBlock, Enabled: true},
		{ID: 2, Pattern: `reboot`, Action: model.ActionWarn, Enabled: false},
	}

	snapshot := cache.Publish(rules)

	if snapshot.Version != 1 {
		t.Errorf("发布后版本 = %d, 应该是 1", snapshot.Version)
	}
	// 禁用的规则不进入快照
	if len(snapshot.Rules) != 2 {
		t.Fatalf("快照规则数 = %d, 应该是 2（禁用规则被排除）", len(snapshot.Rules))
	}
	// 按 ID 升序
	if snapshot.Rules[0].ID != 1 || snapshot.Rules[1].ID != 3 {
		t.Errorf("快照规则顺序 = [%d, %d], 应该按 ID 升序 [1, 3]", snapshot.Rules[0].ID, snapshot.Rules[1].ID)
	}
}

// TestCacheVersionMonotonic 版本号单调递增，包括发布空规则集
func TestCacheVersionMonotonic(t *testing.T) {
	cache := NewCache()

	v1 := cache.Publish([]model.BlacklistRule{{ID: 1, Pattern: `a`, Action: model.ActionBlock, Enabled: true}}).Version
	v2 := cache.Publish(nil).Version
	v3 := cache.Publish(nil).Version

	if !(v1 < v2 && v2 < v3) {
		t.Errorf("版本序列 = %d, %d, %d, 应该严格递增", v1, v2, v3)
	}
}

// TestCacheSkipsUncompilable 编译失败的规则跳过，不影响其他规则
func TestCacheSkipsUncompilable(t *testing.T) {
	cache := NewCache()

	snapshot := cache.Publish([]model.BlacklistRule{
		{ID: 1, Pattern: `[broken`, Action: model.ActionBlock, Enabled: true},
		{ID: 2, Pattern: `^ls`, Action: model.ActionLog, Enabled: true},
	})

	if len(snapshot.Rules) != 1 {
		t.Fatalf("快照规则数 = %d, 应该是 1", len(snapshot.Rules))
	}
	if snapshot.Rules[0].ID != 2 {
		t.Errorf("保留规则 ID = %d, 应该是 2", snapshot.Rules[0].ID)
	}
}

// TestCacheConcurrentAccess 发布与读取并发时读者始终拿到完整快照
func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// 写者持续发布不同规模的规则集
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cache.Publish([]model.BlacklistRule{
				{ID: 1, Pattern: `^rm`, Action: model.ActionBlock, Enabled: true},
				{ID: 2, Pattern: `^dd`, Action: model.ActionWarn, Enabled: true},
			})
			cache.Publish([]model.BlacklistRule{
				{ID: 1, Pattern: `^rm`, Action: model.ActionBlock, Enabled: true},
			})
		}
		close(stop)
	}()

	// 读者检查快照内部一致：要么1条要么2条，规则永远可用
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snapshot := cache.Current()
				if n := len(snapshot.Rules); n != 0 && n != 1 && n != 2 {
					t.Errorf("观察到不完整快照，规则数 = %d", n)
					return
				}
				for _, rule := range snapshot.Rules {
					if rule.re == nil {
						t.Error("快照中存在未编译的规则")
						return
					}
				}
			}
		}()
	}

	wg.Wait()

	if v := cache.Current().Version; v != 400 {
		t.Errorf("最终版本 = %d, 应该是 400", v)
	}
}
