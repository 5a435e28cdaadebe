package service

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"dcsm/internal/config"
	"dcsm/internal/discover"
	"dcsm/internal/logger"
	"dcsm/internal/poller"
	"dcsm/internal/process"
	"dcsm/internal/protocol"
	"dcsm/internal/session"
	"dcsm/internal/state"
	"dcsm/internal/storage"
	"dcsm/pkg/model"
)

// 编辑目标的种类标识
const (
	ObjectSystem    = "system"    // 持久变量袋，写入后调用远端保存钩子
	ObjectTransient = "transient" // 瞬态状态，直接覆盖
)

// 审计结论
const (
	outcomeSuccess  = "success"
	outcomeConflict = "conflict"
	outcomeFailed   = "failed"
)

// Service 运行时修改的编排层。
// 所有阻塞操作都假定在调用方的 worker 协程里执行，自身不做 UI 调度。
// 配置可能被 UI 侧热更新，读写都必须经过 cfgMu。
type Service struct {
	cfgMu    gosync.RWMutex
	cfg      *config.Config
	log      logger.Logger
	sup      *process.Supervisor
	resolver *discover.Resolver
	proto    *protocol.Client
	sync     *state.Synchronizer
	sessions *session.Manager
	poll     *poller.Poller
	store    *storage.Store // 可为 nil，审计变为 best-effort
}

// New 组装服务。notify 用于把状态轮询结果送回 UI 线程。
func New(cfg *config.Config, store *storage.Store, notify func(model.StatusSnapshot), log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	sup := process.New(process.NewProbe(), log)
	// 记下安装路径，让存活探测覆盖非本工具启动的实例
	if exePath, err := process.ResolveExePath(cfg.Game.StorageDir, cfg.Game.ExeName); err == nil {
		sup.RememberExePath(exePath)
	}
	resolver := discover.New(discover.Options{
		ConnectTimeout: time.Duration(cfg.Runtime.ConnectTimeoutMS) * time.Millisecond,
		RetryDelay:     time.Duration(cfg.Runtime.RetryDelayMS) * time.Millisecond,
		MaxRetries:     cfg.Runtime.MaxRetries,
	}, log)
	proto := protocol.NewClient(time.Duration(cfg.Runtime.EvalTimeoutMS)*time.Millisecond, log)

	s := &Service{
		cfg:      cfg,
		log:      log,
		sup:      sup,
		resolver: resolver,
		proto:    proto,
		sync:     state.NewSynchronizer(proto, log),
		sessions: session.NewManager(log),
		store:    store,
	}
	s.poll = poller.New(sup, resolver, poller.Options{
		Port:           func() int { return s.Config().Game.DebugPort },
		ActiveInterval: time.Duration(cfg.Poll.ActiveIntervalMS) * time.Millisecond,
		IdleInterval:   time.Duration(cfg.Poll.IdleIntervalMS) * time.Millisecond,
		CacheTTL:       time.Duration(cfg.Poll.CacheTTLMS) * time.Millisecond,
	}, notify, log)
	return s
}

// Config 当前配置的副本
func (s *Service) Config() config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return *s.cfg
}

// UpdateConfig 整体替换配置。
// 进行中的操作继续使用各自开始时取到的副本。
func (s *Service) UpdateConfig(cfg config.Config) {
	s.cfgMu.Lock()
	s.cfg = &cfg
	s.cfgMu.Unlock()

	if exePath, err := process.ResolveExePath(cfg.Game.StorageDir, cfg.Game.ExeName); err == nil {
		s.sup.RememberExePath(exePath)
	}
	s.poll.Invalidate()
	s.log.Info("配置已更新", "port", cfg.Game.DebugPort)
}

// StartPolling 启动后台状态轮询
func (s *Service) StartPolling() { s.poll.Start() }

// StopPolling 停止后台状态轮询
func (s *Service) StopPolling() { s.poll.Stop() }

// Status 最近一次轮询结论
func (s *Service) Status() model.StatusSnapshot { return s.poll.Snapshot() }

// LaunchAndVerify 启动游戏并验证注入链路：
// 启动 → 固定等待 → 带重试的目标发现 → 引擎对象探测 → 标题打标。
func (s *Service) LaunchAndVerify(ctx context.Context) (model.LaunchInfo, error) {
	cfg := s.Config()
	exePath, err := process.ResolveExePath(cfg.Game.StorageDir, cfg.Game.ExeName)
	if err != nil {
		return model.LaunchInfo{}, err
	}
	port := cfg.Game.DebugPort

	if !process.CheckPortAvailable(port) {
		s.log.Warn("调试端口已被占用，可能已有实例在运行", "port", port)
	}

	if err := s.sup.Launch(exePath, port); err != nil {
		return model.LaunchInfo{}, err
	}
	s.poll.Invalidate()

	// 调试端口在进程起来后需要一段时间才监听
	select {
	case <-ctx.Done():
		return model.LaunchInfo{}, model.WrapError(model.ReasonNoTarget, "launch cancelled", ctx.Err())
	case <-time.After(time.Duration(cfg.Runtime.StartupDelayMS) * time.Millisecond):
	}

	target, err := s.resolver.ResolveWithRetry(ctx, port)
	if err != nil {
		return model.LaunchInfo{}, err
	}

	engineType, err := s.verifyEngine(ctx, target.DebuggerURL)
	if err != nil {
		return model.LaunchInfo{}, err
	}

	// 标题打标失败不影响结果
	if res := s.proto.Evaluate(ctx, target.DebuggerURL, state.MarkTitleExpression); !res.OK() {
		s.log.Debug("窗口标题打标失败", "error", res.ErrorMessage)
	}

	info := model.LaunchInfo{
		DebuggerURL:  target.DebuggerURL,
		InspectorURL: discover.InspectorURL(port, target.DebuggerURL),
		TargetTitle:  target.Title,
		TargetURL:    target.URL,
		TyranoType:   engineType,
	}
	s.log.Info("启动并验证成功", "target", target.Title, "ws", target.DebuggerURL)
	return info, nil
}

// verifyEngine 确认远端引擎对象存在
func (s *Service) verifyEngine(ctx context.Context, debuggerURL string) (string, error) {
	res := s.proto.Evaluate(ctx, debuggerURL, state.CheckExpression)
	if !res.OK() {
		if res.TransportFailure {
			return "", model.NewError(model.ReasonTransport, res.ErrorMessage)
		}
		return "", model.NewError(model.ReasonProtocol, res.ErrorMessage)
	}
	engineType, _ := res.Value.(string)
	if engineType != state.ExpectedEngineType {
		return engineType, model.NewError(model.ReasonWrongShape,
			fmt.Sprintf("typeof TYRANO = %s (expected '%s')", engineType, state.ExpectedEngineType))
	}
	return engineType, nil
}

// StopGame 终止游戏进程
func (s *Service) StopGame() error {
	err := s.sup.Stop()
	s.poll.Invalidate()
	return err
}

// BeginEdit 读取命名对象并开启编辑会话，返回会话 ID 与基线 JSON 文本
func (s *Service) BeginEdit(ctx context.Context, kind string) (string, string, error) {
	object, _, err := s.objectFor(kind)
	if err != nil {
		return "", "", err
	}
	debuggerURL, err := s.debuggerURL(ctx)
	if err != nil {
		return "", "", err
	}
	snap, err := s.sync.ReadObject(ctx, debuggerURL, object)
	if err != nil {
		return "", "", err
	}
	sess := s.sessions.Create(object, snap)
	return sess.ID, string(snap.Raw), nil
}

// EndEdit 放弃/结束编辑会话
func (s *Service) EndEdit(sessionID string) { s.sessions.Delete(sessionID) }

// CheckConflict 检查基线之后远端是否发生漂移
func (s *Service) CheckConflict(ctx context.Context, sessionID string) (bool, []model.Change, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return false, nil, model.NewError(model.ReasonProtocol, "unknown edit session")
	}
	debuggerURL, err := s.debuggerURL(ctx)
	if err != nil {
		return false, nil, err
	}
	return s.sync.CheckConflict(ctx, debuggerURL, sess.Object, sess.Baseline)
}

// Commit 将用户补丁合并写入远端。
// force 为 false 时先做冲突检测，有漂移则不写入并返回变更列表，
// 由 UI 要求用户确认后携 force 重试；写入失败不做自动重试。
func (s *Service) Commit(ctx context.Context, sessionID string, patch []byte, force bool) (model.CommitResult, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return model.CommitResult{}, model.NewError(model.ReasonProtocol, "unknown edit session")
	}
	debuggerURL, err := s.debuggerURL(ctx)
	if err != nil {
		return model.CommitResult{}, err
	}

	if !force {
		conflicted, changes, err := s.sync.CheckConflict(ctx, debuggerURL, sess.Object, sess.Baseline)
		if err != nil {
			return model.CommitResult{}, err
		}
		if conflicted {
			s.audit(sess.Object, patch, outcomeConflict, "")
			return model.CommitResult{Conflicted: true, Changes: changes}, nil
		}
	}

	hook := ""
	if cfg := s.Config(); sess.Object == cfg.Runtime.SystemObject {
		hook = cfg.Runtime.PersistHook
	}

	refreshed, err := s.sync.WriteMerged(ctx, debuggerURL, sess.Object, patch, hook)
	if err != nil {
		s.audit(sess.Object, patch, outcomeFailed, err.Error())
		return model.CommitResult{}, err
	}
	s.sessions.RefreshBaseline(sessionID, refreshed)
	s.audit(sess.Object, patch, outcomeSuccess, "")
	return model.CommitResult{Committed: true}, nil
}

// OverwriteTransient 无需会话的瞬态对象直接覆盖写入
func (s *Service) OverwriteTransient(ctx context.Context, patch []byte) error {
	debuggerURL, err := s.debuggerURL(ctx)
	if err != nil {
		return err
	}
	object := s.Config().Runtime.TransientObject
	if err := s.sync.WriteOverwrite(ctx, debuggerURL, object, patch); err != nil {
		s.audit(object, patch, outcomeFailed, err.Error())
		return err
	}
	s.audit(object, patch, outcomeSuccess, "")
	return nil
}

// RunConsole 诊断控制台：任意表达式经由统一求值通道执行
func (s *Service) RunConsole(ctx context.Context, expression string) model.EvalResult {
	debuggerURL, err := s.debuggerURL(ctx)
	if err != nil {
		return model.EvalResult{ErrorMessage: err.Error()}
	}
	res := s.proto.Evaluate(ctx, debuggerURL, expression)

	if s.store != nil {
		resultText := ""
		if res.Value != nil {
			if b, err := json.Marshal(res.Value); err == nil {
				resultText = string(b)
			}
		}
		if err := s.store.RecordConsole(expression, resultText, res.ErrorMessage); err != nil {
			s.log.Debug("控制台记录写入失败", "error", err)
		}
	}
	return res
}

// MarkCurrentLabelRead 把当前 label 标记为已读（驱动已读快进）
func (s *Service) MarkCurrentLabelRead(ctx context.Context) error {
	debuggerURL, err := s.debuggerURL(ctx)
	if err != nil {
		return err
	}
	res := s.proto.Evaluate(ctx, debuggerURL, state.MarkLabelReadScript)
	if !res.OK() {
		return model.NewError(model.ReasonProtocol, res.ErrorMessage)
	}
	out, ok := res.Value.(map[string]any)
	if !ok {
		return model.NewError(model.ReasonWrongShape,
			fmt.Sprintf("unexpected result type: %T", res.Value))
	}
	if success, _ := out["success"].(bool); success {
		label, _ := out["label"].(string)
		s.log.Info("当前 label 已标记为已读", "label", label)
		return nil
	}
	message, _ := out["message"].(string)
	return model.NewError(model.ReasonProtocol, message)
}

// RecentInjections 注入审计记录
func (s *Service) RecentInjections(limit int) ([]storage.InjectionRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.RecentInjections(limit)
}

// debuggerURL 优先复用轮询缓存的调试器地址，缺失时现场发现一次
func (s *Service) debuggerURL(ctx context.Context) (string, error) {
	if url := s.poll.DebuggerURL(); url != "" {
		return url, nil
	}
	target, err := s.resolver.ResolveWithRetry(ctx, s.Config().Game.DebugPort)
	if err != nil {
		return "", err
	}
	return target.DebuggerURL, nil
}

// audit best-effort 写审计记录
func (s *Service) audit(object string, patch []byte, outcome, errMsg string) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordInjection(object, patch, outcome, errMsg); err != nil {
		s.log.Debug("审计记录写入失败", "error", err)
	}
}

// objectFor 把编辑种类映射到配置的远端对象名与持久化钩子
func (s *Service) objectFor(kind string) (object, hook string, err error) {
	cfg := s.Config()
	switch kind {
	case ObjectSystem:
		return cfg.Runtime.SystemObject, cfg.Runtime.PersistHook, nil
	case ObjectTransient:
		return cfg.Runtime.TransientObject, "", nil
	default:
		return "", "", model.NewError(model.ReasonWrongShape, fmt.Sprintf("unknown object kind: %s", kind))
	}
}
