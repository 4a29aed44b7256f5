package blacklist

import (
	"strings"
	"time"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/pkg/logger"
	"github.com/fisker/zaudit-backend/pkg/metrics"
)

// Verdict 单条命令的评估结论
type Verdict struct {
	Allowed         bool   `json:"allowed"`
	Action          string `json:"action"` // block/warn/log/none
	RuleID          uint64 `json:"rule_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	SnapshotVersion uint64 `json:"-"`
}

// Blocked 命令是否被阻断
func (v Verdict) Blocked() bool {
	return !v.Allowed
}

// Interceptor 命令拦截器
// 对快照做纯函数式评估，无任何副作用；评估全程固定使用一份快照
type Interceptor struct {
	cache        *Cache
	matchTimeout time.Duration
}

// NewInterceptor 创建拦截器
// matchTimeout 为单条规则的匹配时间预算，超时按该规则不匹配处理
func NewInterceptor(cache *Cache, matchTimeout time.Duration) *Interceptor {
	if matchTimeout <= 0 {
		matchTimeout = 5 * time.Millisecond
	}
	return &Interceptor{
		cache:        cache,
		matchTimeout: matchTimeout,
	}
}

// Evaluate 评估一条命令
// 按 ID 升序遍历启用的规则，首个命中的规则生效；
// 单条规则超时只跳过该规则，继续评估后续规则，
// 因此最坏耗时被限定在 预算 × 规则数 以内
func (i *Interceptor) Evaluate(command string) Verdict {
	start := time.Now()
	defer func() {
		metrics.CommandEvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	snapshot := i.cache.Current()

	command = strings.TrimSpace(command)
	if command == "" {
		metrics.CommandEvaluationsTotal.WithLabelValues(model.ActionNone).Inc()
		return Verdict{Allowed: true, Action: model.ActionNone, SnapshotVersion: snapshot.Version}
	}

	for idx := range snapshot.Rules {
		rule := &snapshot.Rules[idx]

		matched, completed := matchWithTimeout(func() bool {
			return rule.re.MatchString(command)
		}, i.matchTimeout)

		if !completed {
			// 超时按不匹配处理，继续下一条规则；记录下来供运维收紧规则
			metrics.RuleMatchTimeoutsTotal.Inc()
			logger.Warnf("[Interceptor] Rule %d match exceeded %v budget, treated as non-match", rule.ID, i.matchTimeout)
			continue
		}
		if !matched {
			continue
		}

		verdict := Verdict{
			Action:          rule.Action,
			RuleID:          rule.ID,
			Reason:          rule.Description,
			SnapshotVersion: snapshot.Version,
		}
		if verdict.Reason == "" {
			verdict.Reason = "命令被安全策略阻止"
		}
		verdict.Allowed = rule.Action != model.ActionBlock

		metrics.CommandEvaluationsTotal.WithLabelValues(rule.Action).Inc()
		return verdict
	}

	metrics.CommandEvaluationsTotal.WithLabelValues(model.ActionNone).Inc()
	return Verdict{Allowed: true, Action: model.ActionNone, SnapshotVersion: snapshot.Version}
}

// matchWithTimeout 在时间预算内执行一次匹配
// 返回 (匹配结果, 是否在预算内完成)；超时后匹配 goroutine 自行结束，
// 结果写入带缓冲的 channel，不会泄漏
func matchWithTimeout(match func() bool, timeout time.Duration) (matched bool, completed bool) {
	done := make(chan bool, 1)
	go func() {
		done <- match()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-done:
		return m, true
	case <-timer.C:
		return false, false
	}
}
