package poller

import (
	"context"
	"sync"
	"time"

	"dcsm/internal/logger"
	"dcsm/pkg/model"
)

// Liveness 进程存活判定能力（进程管理器实现）
type Liveness interface {
	IsRunning() bool
}

// TargetSource 调试目标发现能力（Resolver 实现）。
// Hook 检查即一次成功的目标发现。
type TargetSource interface {
	Resolve(ctx context.Context, port int) (model.DebugTarget, error)
}

// Options 轮询行为配置
type Options struct {
	Port           func() int // 每轮取当前配置的调试端口
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	CacheTTL       time.Duration
	HookTimeout    time.Duration
}

// entry 单项事实的 TTL 缓存
type entry struct {
	value      bool
	capturedAt time.Time
}

func (e entry) fresh(ttl time.Duration) bool {
	return !e.capturedAt.IsZero() && time.Since(e.capturedAt) < ttl
}

// Poller 后台状态轮询器。
// 所有检查都在唯一的 worker 协程内执行，天然不会并发重叠；
// 结果通过注入的 Notify 回调送回 UI 侧。
type Poller struct {
	live    Liveness
	targets TargetSource
	opts    Options
	notify  func(model.StatusSnapshot)
	log     logger.Logger

	mu          sync.RWMutex
	running     entry
	hook        entry
	debuggerURL string

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New 创建轮询器。notify 可为 nil（只读快照模式）。
func New(live Liveness, targets TargetSource, opts Options, notify func(model.StatusSnapshot), log logger.Logger) *Poller {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.ActiveInterval <= 0 {
		opts.ActiveInterval = 2 * time.Second
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Second
	}
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = 5 * time.Second
	}
	return &Poller{
		live:    live,
		targets: targets,
		opts:    opts,
		notify:  notify,
		log:     log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start 启动后台轮询
func (p *Poller) Start() {
	go p.loop()
}

// Stop 停止轮询并等待 worker 退出
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

// Invalidate 作废全部缓存，启动/停止游戏后调用以加速状态收敛
func (p *Poller) Invalidate() {
	p.mu.Lock()
	p.running = entry{}
	p.hook = entry{}
	p.mu.Unlock()
}

// Snapshot 当前状态结论（只读）
func (p *Poller) Snapshot() model.StatusSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.StatusSnapshot{
		GameRunning: p.running.value,
		HookEnabled: p.hook.value,
		DebuggerURL: p.debuggerURL,
		CheckedAt:   p.running.capturedAt.UnixMilli(),
	}
}

// DebuggerURL 最近一次 hook 检查缓存的调试器地址，
// 供同步器复用以省去每次操作前的重新发现
func (p *Poller) DebuggerURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.debuggerURL
}

func (p *Poller) loop() {
	defer close(p.doneCh)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
		}

		running := p.tick()

		interval := p.opts.ActiveInterval
		if !running {
			interval = p.opts.IdleInterval
		}
		timer.Reset(interval)
	}
}

// tick 执行一轮检查：存活 → （仅当存活）hook 可达性。
// 缓存命中直接采用，未命中才发起一次真实检查。
func (p *Poller) tick() bool {
	p.mu.RLock()
	runCache := p.running
	hookCache := p.hook
	p.mu.RUnlock()

	running := runCache.value
	if !runCache.fresh(p.opts.CacheTTL) {
		running = p.live.IsRunning()
		p.mu.Lock()
		p.running = entry{value: running, capturedAt: time.Now()}
		p.mu.Unlock()
	}

	hook := false
	url := ""
	switch {
	case !running:
		// 进程不在就没有 hook 可言，作废旧结论
		p.mu.Lock()
		p.hook = entry{}
		p.debuggerURL = ""
		p.mu.Unlock()
	case hookCache.fresh(p.opts.CacheTTL):
		// 缓存命中不重置时间戳，条目必须按时过期
		hook = hookCache.value
		url = p.DebuggerURL()
	default:
		hook, url = p.checkHook()
		p.mu.Lock()
		p.hook = entry{value: hook, capturedAt: time.Now()}
		p.debuggerURL = url
		p.mu.Unlock()
	}

	if p.notify != nil {
		p.notify(model.StatusSnapshot{
			GameRunning: running,
			HookEnabled: hook,
			DebuggerURL: url,
			CheckedAt:   time.Now().UnixMilli(),
		})
	}
	return running
}

// checkHook 一次真实的 hook 可达性检查，成功时更新缓存的调试器地址
func (p *Poller) checkHook() (bool, string) {
	port := 0
	if p.opts.Port != nil {
		port = p.opts.Port()
	}
	if port <= 0 {
		return false, ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.HookTimeout)
	defer cancel()

	target, err := p.targets.Resolve(ctx, port)
	if err != nil {
		p.log.Debug("hook 检查失败", "port", port, "error", err)
		return false, ""
	}
	return true, target.DebuggerURL
}
