package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// 端口合法范围
const (
	MinPort = 1
	MaxPort = 65535
)

// Game 游戏与调试端口配置
type Game struct {
	ExeName    string `yaml:"exeName"`
	StorageDir string `yaml:"storageDir"` // 游戏 _storage 存档目录，exe 位于其上层目录
	DebugPort  int    `yaml:"debugPort"`
}

// Runtime 运行时修改相关的对象名与超时配置
type Runtime struct {
	SystemObject    string `yaml:"systemObject"`    // 持久变量袋
	TransientObject string `yaml:"transientObject"` // 瞬态状态记录
	PersistHook     string `yaml:"persistHook"`     // 合并写入后调用的远端保存钩子

	StartupDelayMS   int `yaml:"startupDelayMS"`   // 启动后首次发现前的等待
	ConnectTimeoutMS int `yaml:"connectTimeoutMS"` // 发现 HTTP 连接超时
	RetryDelayMS     int `yaml:"retryDelayMS"`
	MaxRetries       int `yaml:"maxRetries"`
	EvalTimeoutMS    int `yaml:"evalTimeoutMS"` // 单次求值整体超时
}

// Poll 状态轮询配置
type Poll struct {
	ActiveIntervalMS int `yaml:"activeIntervalMS"` // 进程在运行时的检查间隔
	IdleIntervalMS   int `yaml:"idleIntervalMS"`   // 进程未运行时降频
	CacheTTLMS       int `yaml:"cacheTTLMS"`
}

// Config 配置文件结构体
type Config struct {
	Version string  `yaml:"version"`
	Game    Game    `yaml:"game"`
	Runtime Runtime `yaml:"runtime"`
	Poll    Poll    `yaml:"poll"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{
		Version: "1.0.0",
		Game: Game{
			ExeName:   "DevilConnection.exe",
			DebugPort: 1145,
		},
		Runtime: Runtime{
			SystemObject:     "TYRANO.kag.variable.sf",
			TransientObject:  "TYRANO.kag.stat",
			PersistHook:      "TYRANO.kag.saveSystemVariable()",
			StartupDelayMS:   3000,
			ConnectTimeoutMS: 5000,
			RetryDelayMS:     1000,
			MaxRetries:       3,
			EvalTimeoutMS:    15000,
		},
		Poll: Poll{
			ActiveIntervalMS: 2000,
			IdleIntervalMS:   5000,
			CacheTTLMS:       1000,
		},
	}
	c.Sqlite.Dsn = "dcsm.sqlite3"
	c.Sqlite.Prefix = "dcsm_"
	c.Log.Level = "debug"
	c.Log.Writer = []string{"console", "file"}
	c.Log.File = "dcsm.log"
	return c
}

// Load 从 yaml 文件读取配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	c := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Save 写回 yaml 文件
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ValidPort 端口是否在合法 TCP 范围内
func ValidPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}
