package model

// DebugTarget 调试发现端点返回的单个可调试页面。
// 每次发现调用都会生成新的实例，不做持久化。
type DebugTarget struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	DebuggerURL string `json:"debuggerURL"`
}

// EvalResult 一次远程表达式求值的结果。
// Value 与 ErrorMessage 恰好填充其一；TransportFailure 标记错误
// 来自本地传输层（连接/超时/坏帧）而非远端求值。
type EvalResult struct {
	Value            any    `json:"value,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	TransportFailure bool   `json:"-"`
}

// OK 求值是否成功
func (r EvalResult) OK() bool { return r.ErrorMessage == "" }

// StatusSnapshot 状态轮询的最新结论
type StatusSnapshot struct {
	GameRunning bool   `json:"gameRunning"`
	HookEnabled bool   `json:"hookEnabled"`
	DebuggerURL string `json:"debuggerURL"`
	CheckedAt   int64  `json:"checkedAt"` // Unix 毫秒
}

// Change 冲突检测产出的单个顶层键变更描述
type Change struct {
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

// String 形如 "key: old -> new"
func (c Change) String() string { return c.Key + ": " + c.Detail }

// LaunchInfo 启动并验证注入成功后的结果信息
type LaunchInfo struct {
	DebuggerURL  string `json:"debuggerURL"`
	InspectorURL string `json:"inspectorURL"`
	TargetTitle  string `json:"targetTitle"`
	TargetURL    string `json:"targetURL"`
	TyranoType   string `json:"tyranoType"`
}

// CommitResult 提交合并写入的结果。
// Conflicted 为 true 时未执行写入，Changes 列出基线之后的远端变更，
// 由调用方向用户确认后带 force 重试。
type CommitResult struct {
	Committed  bool     `json:"committed"`
	Conflicted bool     `json:"conflicted"`
	Changes    []Change `json:"changes,omitempty"`
}
