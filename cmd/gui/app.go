package main

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"dcsm/internal/config"
	"dcsm/internal/logger"
	"dcsm/internal/storage"
	"dcsm/internal/watcher"
	"dcsm/pkg/api"
	"dcsm/pkg/model"
)

const configPath = "config.yaml"

// App 是 GUI 应用的核心状态与业务逻辑封装。
// 所有绑定方法由前端经 wails 桥调用，阻塞操作在桥自己的协程里执行。
// 配置的唯一权威副本由服务层持有，这里不缓存。
type App struct {
	ctx context.Context

	log   logger.Logger
	svc   api.Service
	store *storage.Store
	watch *watcher.Watcher
}

// NewApp 创建应用实例
func NewApp() *App {
	return &App{}
}

// startup 在窗口创建后调用，完成全部装配
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.NewConfig()
	}

	a.log = logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
	})
	if err != nil {
		a.log.Warn("配置文件读取失败，使用默认配置", "path", configPath, "error", err)
	}

	store, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, a.log)
	if err != nil {
		a.log.Err(err, "审计库打开失败，禁用审计", "dsn", cfg.Sqlite.Dsn)
	} else {
		a.store = store
	}

	notify := func(snap model.StatusSnapshot) {
		runtime.EventsEmit(a.ctx, "status:update", snap)
	}
	a.svc = api.NewService(cfg, a.store, notify, a.log)
	a.svc.StartPolling()

	a.startSaveWatcher(cfg.Game.StorageDir)
	a.log.Info("应用启动完成", "port", cfg.Game.DebugPort)
}

// shutdown 退出前停掉轮询与监视
func (a *App) shutdown(ctx context.Context) {
	if a.svc != nil {
		a.svc.StopPolling()
	}
	if a.watch != nil {
		a.watch.Close()
	}
}

// startSaveWatcher 存档目录已配置时开启变更监视
func (a *App) startSaveWatcher(dir string) {
	if a.watch != nil {
		a.watch.Close()
		a.watch = nil
	}
	if dir == "" {
		return
	}
	w, err := watcher.New(dir, func(path string) {
		runtime.EventsEmit(a.ctx, "save:changed", path)
	}, a.log)
	if err != nil {
		a.log.Warn("存档目录监视开启失败", "dir", dir, "error", err)
		return
	}
	a.watch = w
}

// Status 当前轮询状态快照
func (a *App) Status() model.StatusSnapshot {
	return a.svc.Status()
}

// LaunchGame 启动游戏并验证注入链路
func (a *App) LaunchGame() LaunchResponse {
	info, err := a.svc.LaunchAndVerify(a.ctx)
	if err != nil {
		return LaunchResponse{Error: messageFor(err)}
	}
	return LaunchResponse{
		OK:           true,
		InspectorURL: info.InspectorURL,
		TargetTitle:  info.TargetTitle,
		TargetURL:    info.TargetURL,
	}
}

// StopGame 终止游戏进程
func (a *App) StopGame() string {
	if err := a.svc.StopGame(); err != nil {
		return messageFor(err)
	}
	return ""
}

// BeginEdit 开启编辑会话，kind 为 system 或 transient
func (a *App) BeginEdit(kind string) EditResponse {
	id, baseline, err := a.svc.BeginEdit(a.ctx, kind)
	if err != nil {
		return EditResponse{Error: messageFor(err)}
	}
	return EditResponse{SessionID: id, Baseline: baseline}
}

// EndEdit 放弃编辑会话
func (a *App) EndEdit(sessionID string) {
	a.svc.EndEdit(sessionID)
}

// CheckConflict 检查远端状态是否在基线之后发生变化
func (a *App) CheckConflict(sessionID string) ConflictResponse {
	conflicted, changes, err := a.svc.CheckConflict(a.ctx, sessionID)
	if err != nil {
		return ConflictResponse{Error: messageFor(err)}
	}
	return ConflictResponse{Conflicted: conflicted, Changes: changeLines(changes)}
}

// Commit 提交补丁。force 表示用户已确认覆盖远端漂移。
func (a *App) Commit(sessionID, patch string, force bool) CommitResponse {
	result, err := a.svc.Commit(a.ctx, sessionID, []byte(patch), force)
	if err != nil {
		return CommitResponse{Error: messageFor(err)}
	}
	return CommitResponse{
		Committed:  result.Committed,
		Conflicted: result.Conflicted,
		Changes:    changeLines(result.Changes),
	}
}

// OverwriteTransient 覆盖写入瞬态对象
func (a *App) OverwriteTransient(patch string) string {
	if err := a.svc.OverwriteTransient(a.ctx, []byte(patch)); err != nil {
		return messageFor(err)
	}
	return ""
}

// RunConsole 执行诊断控制台表达式
func (a *App) RunConsole(expression string) ConsoleResponse {
	res := a.svc.RunConsole(a.ctx, expression)
	return ConsoleResponse{Value: res.Value, Error: res.ErrorMessage}
}

// MarkCurrentLabelRead 将当前 label 标记为已读
func (a *App) MarkCurrentLabelRead() string {
	if err := a.svc.MarkCurrentLabelRead(a.ctx); err != nil {
		return messageFor(err)
	}
	return ""
}

// RecentInjections 最近的注入审计记录
func (a *App) RecentInjections(limit int) []storage.InjectionRecord {
	records, err := a.svc.RecentInjections(limit)
	if err != nil {
		a.log.Warn("审计记录读取失败", "error", err)
		return nil
	}
	return records
}

// GetConfig 当前配置
func (a *App) GetConfig() config.Config {
	return a.svc.Config()
}

// SaveConfig 写回配置并应用存档目录变更。
// 共享配置只通过服务层的原子替换更新，这里绝不原地改写。
func (a *App) SaveConfig(cfg config.Config) string {
	if !config.ValidPort(cfg.Game.DebugPort) {
		return reasonMessages[model.ReasonInvalidPort]
	}
	a.svc.UpdateConfig(cfg)
	if err := cfg.Save(configPath); err != nil {
		return err.Error()
	}
	a.startSaveWatcher(cfg.Game.StorageDir)
	return ""
}

func changeLines(changes []model.Change) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.String())
	}
	return out
}

// LaunchResponse 启动结果
type LaunchResponse struct {
	OK           bool   `json:"ok"`
	InspectorURL string `json:"inspectorUrl"`
	TargetTitle  string `json:"targetTitle"`
	TargetURL    string `json:"targetUrl"`
	Error        string `json:"error,omitempty"`
}

// EditResponse 编辑会话开启结果
type EditResponse struct {
	SessionID string `json:"sessionId"`
	Baseline  string `json:"baseline"`
	Error     string `json:"error,omitempty"`
}

// ConflictResponse 冲突检测结果
type ConflictResponse struct {
	Conflicted bool     `json:"conflicted"`
	Changes    []string `json:"changes"`
	Error      string   `json:"error,omitempty"`
}

// CommitResponse 提交结果
type CommitResponse struct {
	Committed  bool     `json:"committed"`
	Conflicted bool     `json:"conflicted"`
	Changes    []string `json:"changes"`
	Error      string   `json:"error,omitempty"`
}

// ConsoleResponse 控制台执行结果
type ConsoleResponse struct {
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}
