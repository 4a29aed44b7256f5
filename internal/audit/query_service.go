package audit

import (
	"errors"
	"os"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/internal/repository"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrRecordingNotFound 会话没有可用录像
	ErrRecordingNotFound = errors.New("recording not found")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueryService 审计查询服务，提供会话与命令的分页检索
type QueryService struct {
	sessionRepo *repository.SessionRepository
	commandRepo *repository.CommandRepository
}

// NewQueryService 创建审计查询服务
func NewQueryService(sessionRepo *repository.SessionRepository, commandRepo *repository.CommandRepository) *QueryService {
	return &QueryService{
		sessionRepo: sessionRepo,
		commandRepo: commandRepo,
	}
}

// normalizePage 规范分页参数
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ListSessions 分页查询会话，按开始时间倒序
func (s *QueryService) ListSessions(page, pageSize int, userID, serverID uint64) ([]model.TerminalSession, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.sessionRepo.FindSessions(page, pageSize, userID, serverID)
}

// GetSession 按ID查询单个会话
func (s *QueryService) GetSession(id uint64) (*model.TerminalSession, error) {
	session, err := s.sessionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListCommands 分页查询命令记录，按执行时间倒序
func (s *QueryService) ListCommands(page, pageSize int, sessionID uint64) ([]model.TerminalCommand, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.commandRepo.FindCommands(page, pageSize, sessionID)
}

// GetRecordingPath 查询会话的录像文件路径
// 会话无录像或文件已被清理时返回 ErrRecordingNotFound
func (s *QueryService) GetRecordingPath(sessionID uint64) (string, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if session.RecordingPath == "" {
		return "", ErrRecordingNotFound
	}
	if _, err := os.Stat(session.RecordingPath); err != nil {
		return "", ErrRecordingNotFound
	}
	return session.RecordingPath, nil
}
