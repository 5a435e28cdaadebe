package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dcsm/internal/logger"
	"dcsm/internal/state"
)

// EditSession 一次编辑会话：记录编辑开始时捕获的基线快照，
// 冲突检测以它为参照点。
type EditSession struct {
	ID        string
	Object    string
	Baseline  state.Snapshot
	StartedAt time.Time
}

// Manager 全局编辑会话管理器
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*EditSession
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*EditSession),
		log:      l,
	}
}

// Create 创建并注册新编辑会话
func (m *Manager) Create(object string, baseline state.Snapshot) *EditSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &EditSession{
		ID:        uuid.NewString(),
		Object:    object,
		Baseline:  baseline,
		StartedAt: time.Now(),
	}
	m.sessions[s.ID] = s
	m.log.Info("创建编辑会话", "sessionID", s.ID, "object", object)
	return s
}

// Get 获取会话
func (m *Manager) Get(id string) (*EditSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// RefreshBaseline 成功写入后更新基线，供下一轮编辑使用
func (m *Manager) RefreshBaseline(id string, baseline state.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && baseline.Data != nil {
		s.Baseline = baseline
	}
}

// Delete 销毁会话
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	m.log.Info("销毁编辑会话", "sessionID", id)
}

// List 返回所有活动会话
func (m *Manager) List() []*EditSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*EditSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}
