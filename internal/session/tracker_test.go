package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fisker/zaudit-backend/internal/audit"
	"github.com/fisker/zaudit-backend/internal/blacklist"
	"github.com/fisker/zaudit-backend/internal/model"
)

// fakeAuditor 内存审计器
type fakeAuditor struct {
	mu       sync.Mutex
	nextID   uint64
	sessions map[uint64]*audit.SessionInfo
	ended    map[uint64]string // sessionID -> recording path
	commands []*audit.CommandInfo
}

func newFakeAuditor() *fakeAuditor {
	return &fakeAuditor{
		sessions: make(map[uint64]*audit.SessionInfo),
		ended:    make(map[uint64]string),
	}
}

func (f *fakeAuditor) AuditSessionStart(ctx context.Context, session *audit.SessionInfo) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sessions[f.nextID] = session
	return f.nextID, nil
}

func (f *fakeAuditor) AuditSessionEnd(ctx context.Context, sessionID uint64, endTime time.Time, recording string, degraded bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, done := f.ended[sessionID]; done {
		return audit.ErrSessionAlreadyEnded
	}
	f.ended[sessionID] = recording
	return nil
}

func (f *fakeAuditor) AuditCommand(ctx context.Context, cmd *audit.CommandInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeAuditor) commandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

// fakeRecorder 内存录像器
type fakeRecorder struct {
	mu        sync.Mutex
	frames    []string
	finalized bool
	path      string
}

func (f *fakeRecorder) RecordInput(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finalized {
		f.frames = append(f.frames, "i:"+data)
	}
}

func (f *fakeRecorder) RecordOutput(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finalized {
		f.frames = append(f.frames, "o:"+data)
	}
}

func (f *fakeRecorder) Finalize() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = true
	return f.path, nil
}

func (f *fakeRecorder) Degraded() bool { return false }

func newTestEvaluator(t *testing.T) *blacklist.Interceptor {
	t.Helper()
	cache := blacklist.NewCache()
	cache.Publish([]model.BlacklistRule{
		{ID: 1, Pattern: `^rm\s+-rf\s+/`, Action: model.ActionBlock, Description: "禁止删除根目录", Enabled: true},
		{ID: 2, Pattern: `^reboot`, Action: model.ActionWarn, Enabled: true},
	})
	return blacklist.NewInterceptor(cache, 50*time.Millisecond)
}

// TestTrackerCommandAudit 一个命令边界恰好产生一条审计记录
// 命中规则的命令在检查时落库；干净命令由执行后的上报落库
func TestTrackerCommandAudit(t *testing.T) {
	auditor := newFakeAuditor()
	tracker := NewTracker(auditor, newTestEvaluator(t), nil, nil)
	ctx := context.Background()

	s, err := tracker.Open(ctx, 10, 20, false, 80, 24)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	// 模拟代理契约：每个命令边界先检查，放行且未命中的命令在执行后上报
	commands := []struct {
		command     string
		wantBlocked bool
		wantMatched bool
	}{
		{"ls -la", false, false},
		{"rm -rf /", true, true},
		{"reboot", false, true},
		{"pwd", false, false},
	}

	for _, c := range commands {
		verdict, err := tracker.HandleCommand(ctx, s.StreamID, c.command, "/root")
		if err != nil {
			t.Fatalf("HandleCommand(%q) 失败: %v", c.command, err)
		}
		if verdict.Blocked() != c.wantBlocked {
			t.Errorf("命令 %q Blocked() = %v, 应该是 %v", c.command, verdict.Blocked(), c.wantBlocked)
		}
		if verdict.Action == model.ActionNone {
			if err := tracker.RecordExecuted(ctx, s.StreamID, c.command, "/root", 0); err != nil {
				t.Fatalf("RecordExecuted(%q) 失败: %v", c.command, err)
			}
		}
	}

	// N 个命令边界恰好 N 条记录
	if got := auditor.commandCount(); got != len(commands) {
		t.Fatalf("审计记录数 = %d, 应该是 %d", got, len(commands))
	}

	// 每个命令恰好出现一次，阻断记录带原因
	seen := make(map[string]int)
	for _, rec := range auditor.commands {
		seen[rec.Command]++
		if rec.Blocked && rec.BlockReason == "" {
			t.Errorf("阻断记录 %q 缺少原因", rec.Command)
		}
	}
	for _, c := range commands {
		if seen[c.command] != 1 {
			t.Errorf("命令 %q 的记录数 = %d, 应该恰好是 1", c.command, seen[c.command])
		}
	}
}

// TestTrackerCleanCommandSingleRecord 干净命令的检查不落库，执行上报才落库
func TestTrackerCleanCommandSingleRecord(t *testing.T) {
	auditor := newFakeAuditor()
	tracker := NewTracker(auditor, newTestEvaluator(t), nil, nil)
	ctx := context.Background()

	s, err := tracker.Open(ctx, 1, 1, false, 80, 24)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	verdict, err := tracker.HandleCommand(ctx, s.StreamID, "ls -la", "/root")
	if err != nil {
		t.Fatalf("HandleCommand 失败: %v", err)
	}
	if verdict.Action != model.ActionNone {
		t.Fatalf("ls 不应命中任何规则, action = %s", verdict.Action)
	}
	if got := auditor.commandCount(); got != 0 {
		t.Fatalf("检查阶段审计记录数 = %d, 未命中规则的命令不应在检查时落库", got)
	}

	if err := tracker.RecordExecuted(ctx, s.StreamID, "ls -la", "/root", 0); err != nil {
		t.Fatalf("RecordExecuted 失败: %v", err)
	}
	if got := auditor.commandCount(); got != 1 {
		t.Fatalf("审计记录数 = %d, 一个命令边界应该恰好 1 条", got)
	}
	if rec := auditor.commands[0]; rec.Blocked || rec.Command != "ls -la" {
		t.Errorf("记录内容不符: %+v", rec)
	}
}

// TestTrackerBlockedCommandSingleRecord 阻断命令在检查时落库一条，代理不会再上报
func TestTrackerBlockedCommandSingleRecord(t *testing.T) {
	auditor := newFakeAuditor()
	tracker := NewTracker(auditor, newTestEvaluator(t), nil, nil)
	ctx := context.Background()

	s, err := tracker.Open(ctx, 1, 1, false, 80, 24)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	verdict, err := tracker.HandleCommand(ctx, s.StreamID, "rm -rf /", "/root")
	if err != nil {
		t.Fatalf("HandleCommand 失败: %v", err)
	}
	if !verdict.Blocked() {
		t.Fatal("rm -rf / 应该被阻断")
	}

	if got := auditor.commandCount(); got != 1 {
		t.Fatalf("审计记录数 = %d, 应该恰好是 1", got)
	}
	rec := auditor.commands[0]
	if !rec.Blocked || rec.BlockReason == "" {
		t.Errorf("阻断记录不完整: %+v", rec)
	}
}

// TestTrackerUnknownSession 未知会话返回 ErrSessionNotFound
func TestTrackerUnknownSession(t *testing.T) {
	tracker := NewTracker(newFakeAuditor(), newTestEvaluator(t), nil, nil)

	if _, err := tracker.HandleCommand(context.Background(), "no-such-stream", "ls", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, 应该是 ErrSessionNotFound", err)
	}
	if err := tracker.RecordInput("no-such-stream", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, 应该是 ErrSessionNotFound", err)
	}
	if err := tracker.Close(context.Background(), "no-such-stream"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, 应该是 ErrSessionNotFound", err)
	}
}

// TestTrackerCloseLifecycle 关闭语义：重复关闭与关闭后的命令
func TestTrackerCloseLifecycle(t *testing.T) {
	auditor := newFakeAuditor()
	tracker := NewTracker(auditor, newTestEvaluator(t), nil, nil)
	ctx := context.Background()

	s, err := tracker.Open(ctx, 1, 2, false, 80, 24)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	if err := tracker.Close(ctx, s.StreamID); err != nil {
		t.Fatalf("Close 失败: %v", err)
	}

	// 重复关闭
	if err := tracker.Close(ctx, s.StreamID); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("重复关闭 err = %v, 应该是 ErrSessionEnded", err)
	}

	// 关闭后的命令
	if _, err := tracker.HandleCommand(ctx, s.StreamID, "ls", ""); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("关闭后 HandleCommand err = %v, 应该是 ErrSessionEnded", err)
	}
	if err := tracker.RecordExecuted(ctx, s.StreamID, "ls", "", 0); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("关闭后 RecordExecuted err = %v, 应该是 ErrSessionEnded", err)
	}

	// 只应有一条结束记录
	if len(auditor.ended) != 1 {
		t.Errorf("结束记录数 = %d, 应该是 1", len(auditor.ended))
	}
}

// TestTrackerRecording 录像帧转发与关闭时的定稿
func TestTrackerRecording(t *testing.T) {
	auditor := newFakeAuditor()
	rec := &fakeRecorder{path: "/data/recordings/test.cast.gz"}
	removed := ""

	tracker := NewTracker(auditor, newTestEvaluator(t),
		func(streamID string, cols, rows int) (Recorder, error) { return rec, nil },
		func(streamID string) { removed = streamID },
	)
	ctx := context.Background()

	s, err := tracker.Open(ctx, 1, 2, true, 80, 24)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	tracker.RecordOutput(s.StreamID, "$ ")
	tracker.RecordInput(s.StreamID, "ls\r")

	if err := tracker.Close(ctx, s.StreamID); err != nil {
		t.Fatalf("Close 失败: %v", err)
	}

	if !rec.finalized {
		t.Error("关闭会话时应定稿录像")
	}
	if len(rec.frames) != 2 {
		t.Errorf("录像帧数 = %d, 应该是 2", len(rec.frames))
	}
	if auditor.ended[s.ID] != rec.path {
		t.Errorf("落库的录像路径 = %q, 应该是 %q", auditor.ended[s.ID], rec.path)
	}
	if removed != s.StreamID {
		t.Error("关闭后应回收录像器")
	}
}

// TestTrackerActiveCount 活跃会话计数
func TestTrackerActiveCount(t *testing.T) {
	tracker := NewTracker(newFakeAuditor(), newTestEvaluator(t), nil, nil)
	ctx := context.Background()

	s1, _ := tracker.Open(ctx, 1, 1, false, 80, 24)
	tracker.Open(ctx, 2, 1, false, 80, 24)

	if got := tracker.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, 应该是 2", got)
	}

	tracker.Close(ctx, s1.StreamID)
	if got := tracker.ActiveCount(); got != 1 {
		t.Errorf("关闭一个后 ActiveCount = %d, 应该是 1", got)
	}
}

// TestTrackerConcurrentCommands 并发命令下审计记录不丢不重
func TestTrackerConcurrentCommands(t *testing.T) {
	auditor := newFakeAuditor()
	tracker := NewTracker(auditor, newTestEvaluator(t), nil, nil)
	ctx := context.Background()

	s, err := tracker.Open(ctx, 1, 1, false, 80, 24)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	// 使用命中规则的命令，检查即落库
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.HandleCommand(ctx, s.StreamID, "reboot", ""); err != nil {
				t.Errorf("HandleCommand 失败: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := auditor.commandCount(); got != n {
		t.Errorf("审计记录数 = %d, 应该是 %d", got, n)
	}
}
