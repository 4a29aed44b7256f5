package blacklist

import (
	"testing"
	"time"

	"github.com/fisker/zaudit-backend/internal/model"
)

func newTestInterceptor(rules []model.BlacklistRule) *Interceptor {
	cache := NewCache()
	cache.Publish(rules)
	return NewInterceptor(cache, 50*time.Millisecond)
}

// TestEvaluateFirstMatchWins 按 ID 升序首个命中的规则生效
func TestEvaluateFirstMatchWins(t *testing.T) {
	// 规则1（warn）比规则2（block）ID小，同时命中时 warn 生效
	interceptor := newTestInterceptor([]model.BlacklistRule{
		{ID: 2, Pattern: `rm\s+-rf`, Action: model.ActionBlock, Description: "危险删除", Enabled: true},
		{ID: 1, Pattern: `^rm`, Action: model.ActionWarn, Description: "删除命令", Enabled: true},
	})

	verdict := interceptor.Evaluate("rm -rf /data")

	if verdict.RuleID != 1 {
		t.Errorf("命中规则 = %d, 应该是 ID 更小的规则 1", verdict.RuleID)
	}
	if verdict.Action != model.ActionWarn {
		t.Errorf("action = %s, 应该是 warn", verdict.Action)
	}
	if verdict.Blocked() {
		t.Error("warn 动作不应阻断命令")
	}
}

// TestEvaluateActions 测试各动作的阻断语义
func TestEvaluateActions(t *testing.T) {
	interceptor := newTestInterceptor([]model.BlacklistRule{
		{ID: 1, Pattern: `^rm\s+-rf\s+/`, Action: model.ActionBlock, Description: "禁止删除根目录", Enabled: true},
		{ID: 2, Pattern: `^reboot`, Action: model.ActionWarn, Enabled: true},
		{ID: 3, Pattern: `^curl`, Action: model.ActionLog, Enabled: true},
	})

	tests := []struct {
		name        string
		command     string
		wantBlocked bool
		wantAction  string
		wantRuleID  uint64
	}{
		{"命中block规则", "rm -rf /", true, model.ActionBlock, 1},
		{"命中warn规则", "reboot now", false, model.ActionWarn, 2},
		{"命中log规则", "curl http://example.com", false, model.ActionLog, 3},
		{"未命中任何规则", "ls -la", false, model.ActionNone, 0},
		{"空命令", "", false, model.ActionNone, 0},
		{"纯空白命令", "   \t  ", false, model.ActionNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := interceptor.Evaluate(tt.command)
			if verdict.Blocked() != tt.wantBlocked {
				t.Errorf("Blocked() = %v, 应该是 %v", verdict.Blocked(), tt.wantBlocked)
			}
			if verdict.Action != tt.wantAction {
				t.Errorf("Action = %s, 应该是 %s", verdict.Action, tt.wantAction)
			}
			if verdict.RuleID != tt.wantRuleID {
				t.Errorf("RuleID = %d, 应该是 %d", verdict.RuleID, tt.wantRuleID)
			}
		})
	}
}

// TestEvaluateBlockReasonFallback 规则没有描述时使用兜底文案
func TestEvaluateBlockReasonFallback(t *testing.T) {
	interceptor := newTestInterceptor([]model.BlacklistRule{
		{ID: 1, Pattern: `^mkfs`, Action: model.ActionBlock, Enabled: true},
	})

	verdict := interceptor.Evaluate("mkfs.ext4 /dev/sda1")
	if !verdict.Blocked() {
		t.Fatal("mkfs 命令应该被阻断")
	}
	if verdict.Reason == "" {
		t.Error("阻断结论必须带原因")
	}
}

// TestEvaluateSnapshotVersion 结论携带评估所用的快照版本
func TestEvaluateSnapshotVersion(t *testing.T) {
	cache := NewCache()
	cache.Publish([]model.BlacklistRule{{ID: 1, Pattern: `^rm`, Action: model.ActionBlock, Enabled: true}})
	cache.Publish([]model.BlacklistRule{{ID: 1, Pattern: `^rm`, Action: model.ActionBlock, Enabled: true}})
	interceptor := NewInterceptor(cache, 50*time.Millisecond)

	verdict := interceptor.Evaluate("ls")
	if verdict.SnapshotVersion != 2 {
		t.Errorf("SnapshotVersion = %d, 应该是 2", verdict.SnapshotVersion)
	}
}

// TestMatchWithTimeout 单条规则的匹配超时控制
func TestMatchWithTimeout(t *testing.T) {
	// 在预算内完成
	matched, completed := matchWithTimeout(func() bool { return true }, 100*time.Millisecond)
	if !completed || !matched {
		t.Errorf("快速匹配: matched=%v completed=%v, 应该都为 true", matched, completed)
	}

	// 超出预算：按未完成处理
	matched, completed = matchWithTimeout(func() bool {
		time.Sleep(200 * time.Millisecond)
		return true
	}, 10*time.Millisecond)
	if completed {
		t.Error("慢匹配应该超时")
	}
	if matched {
		t.Error("超时时 matched 应该为 false")
	}
}

// TestEvaluateTimeoutSkipsRule 超时规则跳过后继续评估后续规则
func TestEvaluateTimeoutSkipsRule(t *testing.T) {
	cache := NewCache()
	cache.Publish([]model.BlacklistRule{
		{ID: 1, Pattern: `^ls`, Action: model.ActionBlock, Enabled: true},
		{ID: 2, Pattern: `^rm`, Action: model.ActionBlock, Description: "删除拦截", Enabled: true},
	})
	// 规则1不匹配（等价于被跳过）时规则2仍然生效
	interceptor := NewInterceptor(cache, 50*time.Millisecond)

	verdict := interceptor.Evaluate("rm /tmp/x")
	if verdict.RuleID != 2 {
		t.Errorf("命中规则 = %d, 应该是 2", verdict.RuleID)
	}
	if !verdict.Blocked() {
		t.Error("rm 命令应该被规则2阻断")
	}
}
