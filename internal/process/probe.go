package process

import (
	"path/filepath"
	"strings"

	gops "github.com/shirou/gopsutil/v4/process"

	"dcsm/pkg/model"
)

// Probe 按可执行文件路径探测系统进程的能力。
// 平台不支持进程枚举时返回 probe_unsupported，而不是假的 false。
type Probe interface {
	FindByPath(exePath string) (bool, error)
}

// gopsProbe 基于 gopsutil 的跨平台实现
type gopsProbe struct{}

// NewProbe 创建默认进程探测器
func NewProbe() Probe { return gopsProbe{} }

// FindByPath 枚举同名进程并逐个比较解析后的完整路径（忽略大小写）
func (gopsProbe) FindByPath(exePath string) (bool, error) {
	if exePath == "" {
		return false, nil
	}
	target, err := normalizePath(exePath)
	if err != nil {
		return false, nil
	}
	wantName := trimExeSuffix(filepath.Base(exePath))

	procs, err := gops.Processes()
	if err != nil {
		return false, model.WrapError(model.ReasonProbeUnsupported,
			"process enumeration unavailable", err)
	}

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if !strings.EqualFold(trimExeSuffix(name), wantName) {
			continue
		}
		exe, err := p.Exe()
		if err != nil || exe == "" {
			continue
		}
		got, err := normalizePath(exe)
		if err != nil {
			continue
		}
		if got == target {
			return true, nil
		}
	}
	return false, nil
}

func normalizePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return strings.ToLower(filepath.Clean(abs)), nil
}

func trimExeSuffix(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}
