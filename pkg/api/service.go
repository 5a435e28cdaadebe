package api

import (
	"context"

	"dcsm/internal/config"
	"dcsm/internal/logger"
	"dcsm/internal/service"
	"dcsm/internal/storage"
	"dcsm/pkg/model"
)

// 编辑目标的种类标识
const (
	ObjectSystem    = service.ObjectSystem
	ObjectTransient = service.ObjectTransient
)

// Service 服务接口
type Service interface {
	// Config 当前配置的副本
	Config() config.Config

	// UpdateConfig 整体替换配置
	UpdateConfig(cfg config.Config)

	// StartPolling 启动后台状态轮询
	StartPolling()

	// StopPolling 停止后台状态轮询
	StopPolling()

	// Status 最近一次轮询到的状态快照
	Status() model.StatusSnapshot

	// LaunchAndVerify 带调试端口启动游戏并验证注入链路
	LaunchAndVerify(ctx context.Context) (model.LaunchInfo, error)

	// StopGame 终止游戏进程
	StopGame() error

	// BeginEdit 读取命名对象并开启编辑会话，返回会话 ID 与基线 JSON
	BeginEdit(ctx context.Context, kind string) (string, string, error)

	// EndEdit 结束编辑会话
	EndEdit(sessionID string)

	// CheckConflict 检查基线之后远端状态是否发生漂移
	CheckConflict(ctx context.Context, sessionID string) (bool, []model.Change, error)

	// Commit 将补丁深合并写入远端，force 为 false 时先做冲突检测
	Commit(ctx context.Context, sessionID string, patch []byte, force bool) (model.CommitResult, error)

	// OverwriteTransient 瞬态对象的直接覆盖写入
	OverwriteTransient(ctx context.Context, patch []byte) error

	// RunConsole 在游戏页面上下文执行任意表达式
	RunConsole(ctx context.Context, expression string) model.EvalResult

	// MarkCurrentLabelRead 把当前 label 标记为已读
	MarkCurrentLabelRead(ctx context.Context) error

	// RecentInjections 最近的注入审计记录
	RecentInjections(limit int) ([]storage.InjectionRecord, error)
}

// NewService 创建并返回服务接口实现。
// store 可为 nil，此时跳过审计记录。
func NewService(cfg *config.Config, store *storage.Store, notify func(model.StatusSnapshot), l logger.Logger) Service {
	return service.New(cfg, store, notify, l)
}
