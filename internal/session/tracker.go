package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fisker/zaudit-backend/internal/audit"
	"github.com/fisker/zaudit-backend/internal/blacklist"
	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/pkg/logger"
	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded 会话已结束
	ErrSessionEnded = errors.New("session already ended")
)

// Evaluator 命令评估器
type Evaluator interface {
	Evaluate(command string) blacklist.Verdict
}

// Recorder 会话录像器
type Recorder interface {
	RecordInput(data string)
	RecordOutput(data string)
	Finalize() (string, error)
	Degraded() bool
}

// RecorderFactory 按会话创建录像器
type RecorderFactory func(streamID string, cols, rows int) (Recorder, error)

// Session 一个活跃的终端会话
// 命令处理持有会话级互斥锁，同一会话内的命令严格串行
type Session struct {
	mu sync.Mutex

	ID        uint64
	StreamID  string
	UserID    uint64
	ServerID  uint64
	StartedAt time.Time

	ended    bool
	recorder Recorder
}

// Tracker 会话跟踪器，维护所有活跃会话的生命周期
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	auditor      audit.Auditor
	evaluator    Evaluator
	newRecorder  RecorderFactory
	removeRecord func(streamID string)
}

// NewTracker 创建会话跟踪器
// newRecorder 为空时所有会话禁用录像；removeRecord 在录像路径落库后回收录像器
func NewTracker(auditor audit.Auditor, evaluator Evaluator, newRecorder RecorderFactory, removeRecord func(streamID string)) *Tracker {
	if removeRecord == nil {
		removeRecord = func(string) {}
	}
	return &Tracker{
		sessions:     make(map[string]*Session),
		auditor:      auditor,
		evaluator:    evaluator,
		newRecorder:  newRecorder,
		removeRecord: removeRecord,
	}
}

// Open 建立新会话，返回分配的流ID
func (t *Tracker) Open(ctx context.Context, userID, serverID uint64, recordingEnabled bool, cols, rows int) (*Session, error) {
	streamID := uuid.New().String()
	now := time.Now()

	var rec Recorder
	if recordingEnabled && t.newRecorder != nil {
		r, err := t.newRecorder(streamID, cols, rows)
		if err != nil {
			// 录像失败不阻断会话建立，降级为无录像
			logger.Warnf("[Session] Failed to open recorder for %s: %v", streamID, err)
		} else {
			rec = r
		}
	}

	id, err := t.auditor.AuditSessionStart(ctx, &audit.SessionInfo{
		StreamID:         streamID,
		UserID:           userID,
		ServerID:         serverID,
		StartTime:        now,
		TerminalCols:     cols,
		TerminalRows:     rows,
		RecordingEnabled: rec != nil,
	})
	if err != nil {
		if rec != nil {
			rec.Finalize()
			t.removeRecord(streamID)
		}
		return nil, err
	}

	s := &Session{
		ID:        id,
		StreamID:  streamID,
		UserID:    userID,
		ServerID:  serverID,
		StartedAt: now,
		recorder:  rec,
	}

	t.mu.Lock()
	t.sessions[streamID] = s
	t.mu.Unlock()

	logger.Infof("[Session] Session opened: stream=%s, user=%d, server=%d", streamID, userID, serverID)
	return s, nil
}

// Exists 会话是否在跟踪表中
func (t *Tracker) Exists(streamID string) bool {
	_, ok := t.get(streamID)
	return ok
}

// get 查找活跃会话
func (t *Tracker) get(streamID string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[streamID]
	return s, ok
}

// HandleCommand 评估命令并写入审计记录
// 每条处理过的命令恰好产生一条审计记录；被阻止的命令退出码无意义，记 0
func (t *Tracker) HandleCommand(ctx context.Context, streamID, command, workingDir string) (blacklist.Verdict, error) {
	s, ok := t.get(streamID)
	if !ok {
		return blacklist.Verdict{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return blacklist.Verdict{}, ErrSessionEnded
	}

	verdict := t.evaluator.Evaluate(command)

	// 未命中规则的命令由执行完成后的上报落库（RecordExecuted），
	// 这里只落命中规则的命令，一个命令边界恰好一条记录
	if verdict.Action != model.ActionNone {
		info := &audit.CommandInfo{
			SessionID:  s.ID,
			UserID:     s.UserID,
			ServerID:   s.ServerID,
			Command:    command,
			WorkingDir: workingDir,
			ExecutedAt: time.Now(),
		}
		if verdict.Blocked() {
			info.Blocked = true
			info.BlockReason = verdict.Reason
		}

		if err := t.auditor.AuditCommand(ctx, info); err != nil {
			logger.Errorf("[Session] Failed to audit command for %s: %v", streamID, err)
		}
	}

	return verdict, nil
}

// RecordExecuted 记录代理侧执行完成的命令及退出码，不做拦截评估
// 命中规则的命令在检查时已经落库，代理只上报未命中规则的干净执行
func (t *Tracker) RecordExecuted(ctx context.Context, streamID, command, workingDir string, exitCode int) error {
	s, ok := t.get(streamID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}

	return t.auditor.AuditCommand(ctx, &audit.CommandInfo{
		SessionID:  s.ID,
		UserID:     s.UserID,
		ServerID:   s.ServerID,
		Command:    command,
		WorkingDir: workingDir,
		ExecutedAt: time.Now(),
		ExitCode:   exitCode,
	})
}

// RecordInput 记录输入帧
func (t *Tracker) RecordInput(streamID, data string) error {
	s, ok := t.get(streamID)
	if !ok {
		return ErrSessionNotFound
	}
	if s.recorder != nil {
		s.recorder.RecordInput(data)
	}
	return nil
}

// RecordOutput 记录输出帧
func (t *Tracker) RecordOutput(streamID, data string) error {
	s, ok := t.get(streamID)
	if !ok {
		return ErrSessionNotFound
	}
	if s.recorder != nil {
		s.recorder.RecordOutput(data)
	}
	return nil
}

// Close 结束会话：先定稿录像，再落库结束时间与录像路径
// 重复关闭返回 ErrSessionEnded
func (t *Tracker) Close(ctx context.Context, streamID string) error {
	s, ok := t.get(streamID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}
	s.ended = true

	var recordingPath string
	var degraded bool
	if s.recorder != nil {
		path, err := s.recorder.Finalize()
		if err != nil {
			logger.Warnf("[Session] Failed to finalize recording for %s: %v", streamID, err)
			degraded = true
		} else {
			recordingPath = path
			degraded = s.recorder.Degraded()
		}
	}

	endTime := time.Now()
	if err := t.auditor.AuditSessionEnd(ctx, s.ID, endTime, recordingPath, degraded); err != nil {
		if errors.Is(err, audit.ErrSessionAlreadyEnded) {
			logger.Warnf("[Session] Session %d already ended in store", s.ID)
		} else {
			logger.Errorf("[Session] Failed to record session end for %s: %v", streamID, err)
		}
	}

	// 录像路径已持久化，回收录像器
	// 已结束的会话条目保留一小段时间，让重复关闭能判定为已结束而非不存在
	t.removeRecord(streamID)
	s.recorder = nil
	time.AfterFunc(10*time.Minute, func() {
		t.mu.Lock()
		delete(t.sessions, streamID)
		t.mu.Unlock()
	})

	logger.Infof("[Session] Session closed: stream=%s", streamID)
	return nil
}

// ActiveCount 当前活跃会话数
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, s := range t.sessions {
		s.mu.Lock()
		if !s.ended {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// CloseAll 关闭所有活跃会话（服务停机时调用）
func (t *Tracker) CloseAll(ctx context.Context) {
	t.mu.RLock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	for _, id := range ids {
		if err := t.Close(ctx, id); err != nil && !errors.Is(err, ErrSessionEnded) {
			logger.Warnf("[Session] Failed to close session %s on shutdown: %v", id, err)
		}
	}
}
