package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Interceptor Metrics

	// CommandEvaluationsTotal 命令评估总数（按动作分类）
	CommandEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_evaluations_total",
			Help: "Total number of command evaluations by verdict action",
		},
		[]string{"action"},
	)

	// CommandEvaluationDuration 命令评估耗时
	CommandEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "command_evaluation_duration_seconds",
			Help:    "Command evaluation duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	// RuleMatchTimeoutsTotal 规则匹配超时次数（超时按不匹配处理）
	RuleMatchTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_match_timeouts_total",
			Help: "Total number of per-rule match timeouts (treated as non-match)",
		},
	)

	// Blacklist Metrics

	// BlacklistRules 当前快照中启用的规则数量
	BlacklistRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blacklist_rules_total",
			Help: "Number of enabled rules in the current snapshot",
		},
	)

	// BlacklistSnapshotVersion 当前规则快照版本号
	BlacklistSnapshotVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blacklist_snapshot_version",
			Help: "Version number of the current rule snapshot",
		},
	)

	// Session Metrics

	// ActiveSessions 当前活跃的终端会话数
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "terminal_active_sessions",
			Help: "Number of active terminal sessions",
		},
	)

	// CommandsBlockedTotal 被阻断的命令总数
	CommandsBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "terminal_commands_blocked_total",
			Help: "Total number of blocked terminal commands",
		},
	)

	// Audit Metrics

	// AuditWriteRetriesTotal 命令审计写入重试次数
	AuditWriteRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_retries_total",
			Help: "Total number of retried audit log writes",
		},
	)

	// Recorder Metrics

	// RecorderDroppedFramesTotal 录像缓冲区溢出丢弃的帧数
	RecorderDroppedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_dropped_frames_total",
			Help: "Total number of recording frames dropped due to full buffers",
		},
	)

	// RecorderWriteErrorsTotal 录像写入错误次数
	RecorderWriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_write_errors_total",
			Help: "Total number of recording write errors",
		},
	)
)
