package recorder

import (
	"sync"
)

// Manager 录像器管理，按 stream ID 聚合所有活跃录像
type Manager struct {
	mu        sync.RWMutex
	recorders map[string]*Recorder
	dir       string
}

// NewManager 创建录像管理器
func NewManager(dir string) *Manager {
	return &Manager{
		recorders: make(map[string]*Recorder),
		dir:       dir,
	}
}

// Open 为会话创建录像器
func (m *Manager) Open(streamID string, width, height int) (*Recorder, error) {
	r, err := NewRecorder(m.dir, streamID, width, height)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.recorders[streamID] = r
	m.mu.Unlock()

	return r, nil
}

// Get 获取会话的录像器
func (m *Manager) Get(streamID string) (*Recorder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recorders[streamID]
	return r, ok
}

// Remove 移除已完成的录像器
// 调用方在录像路径持久化之后再移除，保证 Finalize 的幂等窗口
func (m *Manager) Remove(streamID string) {
	m.mu.Lock()
	delete(m.recorders, streamID)
	m.mu.Unlock()
}

// Count 当前活跃录像数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recorders)
}
