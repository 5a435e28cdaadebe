package process

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"dcsm/internal/config"
	"dcsm/pkg/model"
)

const portCheckTimeout = 100 * time.Millisecond

// CheckPortAvailable 端口是否空闲（未被占用）。
// 能连上说明已有进程监听。
func CheckPortAvailable(port int) bool {
	if !config.ValidPort(port) {
		return false
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), portCheckTimeout)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

// ResolveExePath 从存档目录推导游戏可执行文件路径。
// 游戏 exe 位于 _storage 目录的上层目录。
func ResolveExePath(storageDir, exeName string) (string, error) {
	if storageDir == "" {
		return "", model.NewError(model.ReasonExeNotFound, "storage directory not set")
	}
	info, err := os.Stat(storageDir)
	if err != nil || !info.IsDir() {
		return "", model.NewError(model.ReasonExeNotFound,
			fmt.Sprintf("storage directory invalid: %s", storageDir))
	}
	exePath := filepath.Join(filepath.Dir(filepath.Clean(storageDir)), exeName)
	fi, err := os.Stat(exePath)
	if err != nil || !fi.Mode().IsRegular() {
		return "", model.NewError(model.ReasonExeNotFound,
			fmt.Sprintf("game executable not found: %s", exePath))
	}
	return exePath, nil
}
