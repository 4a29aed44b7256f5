package blacklist

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
	"time"
)

// ErrInvalidPattern 规则模式非法（编译失败或未通过安全探测）
// 在创建/更新时拒绝，不会进入规则缓存
var ErrInvalidPattern = errors.New("invalid pattern")

// MaxPatternLength 模式文本长度上限
const MaxPatternLength = 512

// probeInputs 写入时安全探测的固定对抗输入集
// 覆盖长重复串、带干扰后缀的重复串、长路径、长混合命令行
var probeInputs = buildProbeInputs()

func buildProbeInputs() []string {
	return []string{
		strings.Repeat("a", 4096),
		strings.Repeat("a", 2048) + "!",
		strings.Repeat("ab", 2048),
		strings.Repeat("a ", 2048) + "b",
		"rm -rf " + strings.Repeat("/very/deep/path", 256),
		strings.Repeat("x=1; ", 1024) + "eval $x",
		strings.Repeat(".", 4096),
		strings.Repeat("0123456789", 400),
	}
}

// ValidatePattern 校验规则模式是否可以安全评估
// 三道门槛，全部在写入时完成，评估路径不再做任何校验：
//  1. 编译必须成功
//  2. 语法树中不允许嵌套的无界重复（如 (a+)+ ），这类结构在回溯引擎上
//     会灾难性回溯，即使在线性引擎上也代价高，一律拒绝
//  3. 对固定的对抗输入集做一轮试匹配，总耗时必须在预算内
func ValidatePattern(pattern string, budget time.Duration) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("%w: pattern is empty", ErrInvalidPattern)
	}
	if len(pattern) > MaxPatternLength {
		return fmt.Errorf("%w: pattern exceeds %d bytes", ErrInvalidPattern, MaxPatternLength)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	if hasNestedRepeat(parsed, false) {
		return fmt.Errorf("%w: nested unbounded repetition", ErrInvalidPattern)
	}

	deadline := time.Now().Add(budget)
	for _, input := range probeInputs {
		re.MatchString(input)
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: probe exceeded %v budget", ErrInvalidPattern, budget)
		}
	}

	return nil
}

// hasNestedRepeat 检查语法树中是否存在嵌套的无界重复
func hasNestedRepeat(re *syntax.Regexp, inRepeat bool) bool {
	unbounded := isUnboundedRepeat(re)
	if unbounded && inRepeat {
		return true
	}
	for _, sub := range re.Sub {
		if hasNestedRepeat(sub, inRepeat || unbounded) {
			return true
		}
	}
	return false
}

// isUnboundedRepeat 判断节点是否为无界重复（* + {n,}）
func isUnboundedRepeat(re *syntax.Regexp) bool {
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus:
		return true
	case syntax.OpRepeat:
		return re.Max < 0
	}
	return false
}
