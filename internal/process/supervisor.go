package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"dcsm/internal/config"
	"dcsm/internal/logger"
	"dcsm/pkg/model"
)

// stopTimeout 优雅终止的等待上限，超时后强制 kill
const stopTimeout = 3 * time.Second

// Handle 本工具启动的游戏进程句柄
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// alive 进程是否仍在运行（非阻塞）
func (h *Handle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Supervisor 游戏进程生命周期管理。
// 句柄由 Supervisor 独占持有；外部启动的游戏通过 Probe 按路径探测。
type Supervisor struct {
	mu      sync.Mutex
	handle  *Handle
	exePath string
	probe   Probe
	log     logger.Logger
}

// New 创建进程管理器
func New(probe Probe, log logger.Logger) *Supervisor {
	if log == nil {
		log = logger.NewNop()
	}
	if probe == nil {
		probe = NewProbe()
	}
	return &Supervisor{probe: probe, log: log}
}

// Launch 以调试端口启动游戏进程。
// 发现/求值端点由独立进程访问，因此必须放开 origin 限制。
func (s *Supervisor) Launch(exePath string, port int) error {
	info, err := os.Stat(exePath)
	if err != nil {
		return model.WrapError(model.ReasonExeNotFound,
			fmt.Sprintf("game executable not found: %s", exePath), err)
	}
	if !info.Mode().IsRegular() {
		return model.NewError(model.ReasonExeNotFound,
			fmt.Sprintf("path is not a regular file: %s", exePath))
	}
	if !config.ValidPort(port) {
		return model.NewError(model.ReasonInvalidPort,
			fmt.Sprintf("port %d out of range [%d, %d]", port, config.MinPort, config.MaxPort))
	}

	cmd := exec.Command(exePath,
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--remote-allow-origins=*",
	)
	cmd.Stdout = nil
	cmd.Stderr = nil

	s.log.Info("启动游戏进程", "exe", exePath, "port", port)
	if err := cmd.Start(); err != nil {
		return model.WrapError(model.ReasonSpawnFailed, "failed to start process", err)
	}

	h := &Handle{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	s.mu.Lock()
	s.handle = h
	s.exePath = exePath
	s.mu.Unlock()
	return nil
}

// RememberExePath 记录安装路径，用于探测非本工具启动的实例
func (s *Supervisor) RememberExePath(exePath string) {
	s.mu.Lock()
	s.exePath = exePath
	s.mu.Unlock()
}

// IsRunning 游戏是否在运行。
// 快路径检查自己启动的进程；句柄失效后回退到按路径的系统进程探测，
// 以覆盖从其他途径启动的游戏。探测不可用时按未运行处理。
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	h := s.handle
	exePath := s.exePath
	s.mu.Unlock()

	if h != nil {
		if h.alive() {
			return true
		}
		// 进程已结束，失效句柄
		s.mu.Lock()
		if s.handle == h {
			s.handle = nil
		}
		s.mu.Unlock()
	}

	if exePath == "" {
		return false
	}
	found, err := s.probe.FindByPath(exePath)
	if err != nil {
		if model.ReasonOf(err) == model.ReasonProbeUnsupported {
			s.log.Debug("进程探测在当前平台不可用", "exe", exePath)
		} else {
			s.log.Debug("按路径探测进程失败", "error", err)
		}
		return false
	}
	return found
}

// Stop 请求进程优雅退出，超时后强制终止。
// 进程已不存在视为成功。
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h == nil {
		return nil
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		// Windows 不支持 SIGTERM，直接走强制终止
		s.log.Debug("优雅终止请求失败，转为强制终止", "error", err)
		return s.kill(h)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(stopTimeout):
		s.log.Warn("进程终止超时，强制 kill")
		return s.kill(h)
	}
}

func (s *Supervisor) kill(h *Handle) error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-h.done
	return nil
}
