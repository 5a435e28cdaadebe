package discover

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mafredri/cdp/devtool"

	"dcsm/internal/logger"
	"dcsm/pkg/model"
)

// 目标评分关键词与权重，命中标题的权重高于命中 URL。
// URL 片段用于区分打包后的游戏页面与宿主空白页。
var (
	titleKeywords = []string{"恶魔", "devil", "でびるコネクショん", "でびる"}
	urlKeywords   = []string{"app.asar", "index.html"}
)

const (
	titleWeight = 10
	urlWeight   = 5
)

// 只有这两类目标可能承载游戏页面
const (
	targetTypePage    = "page"
	targetTypeWebview = "webview"
)

// Options 发现行为配置
type Options struct {
	ConnectTimeout time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
}

// Resolver 调试目标发现与选择
type Resolver struct {
	client *http.Client
	opts   Options
	log    logger.Logger
}

// New 创建 Resolver。HTTP 客户端挂接 cacheBust transport，
// 保证每次 /json/list 请求都带时间戳参数绕过缓存。
func New(opts Options, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Resolver{
		client: &http.Client{
			Timeout:   opts.ConnectTimeout,
			Transport: &cacheBustTransport{base: http.DefaultTransport},
		},
		opts: opts,
		log:  log,
	}
}

// cacheBustTransport 为发现请求追加毫秒时间戳查询参数
type cacheBustTransport struct {
	base http.RoundTripper
}

func (t *cacheBustTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	q := clone.URL.Query()
	q.Set("t", strconv.FormatInt(time.Now().UnixMilli(), 10))
	clone.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(clone)
}

// Resolve 查询一次发现端点并选出最相关的调试目标
func (r *Resolver) Resolve(ctx context.Context, port int) (model.DebugTarget, error) {
	dt := devtool.New(fmt.Sprintf("http://127.0.0.1:%d", port), devtool.WithClient(r.client))

	ctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	targets, err := dt.List(ctx)
	if err != nil {
		r.log.Debug("发现端点请求失败", "port", port, "error", err)
		return model.DebugTarget{}, model.WrapError(model.ReasonNoTarget,
			fmt.Sprintf("discovery endpoint unreachable on port %d", port), err)
	}

	sel := pickTarget(targets)
	if sel == nil {
		return model.DebugTarget{}, model.NewError(model.ReasonNoTarget, "no debuggable page target")
	}
	return model.DebugTarget{
		ID:          sel.ID,
		Type:        string(sel.Type),
		Title:       sel.Title,
		URL:         sel.URL,
		DebuggerURL: sel.WebSocketDebuggerURL,
	}, nil
}

// ResolveWithRetry 带固定次数与间隔的重试发现。
// 调试端口在进程启动后需要一点时间才可用；启动后的一次性等待由调用方负责。
func (r *Resolver) ResolveWithRetry(ctx context.Context, port int) (model.DebugTarget, error) {
	var lastErr error
	for attempt := 0; attempt < r.opts.MaxRetries; attempt++ {
		target, err := r.Resolve(ctx, port)
		if err == nil {
			return target, nil
		}
		lastErr = err
		if attempt < r.opts.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return model.DebugTarget{}, model.WrapError(model.ReasonNoTarget,
					"discovery cancelled", ctx.Err())
			case <-time.After(r.opts.RetryDelay):
			}
		}
	}
	return model.DebugTarget{}, lastErr
}

// pickTarget 过滤并选出得分最高的目标，同分保持原始顺序
func pickTarget(targets []*devtool.Target) *devtool.Target {
	var sel *devtool.Target
	best := -1
	for _, t := range targets {
		tt := string(t.Type)
		if tt != targetTypePage && tt != targetTypeWebview {
			continue
		}
		if score := scoreTarget(t.Title, t.URL); score > best {
			best = score
			sel = t
		}
	}
	return sel
}

// scoreTarget 计算目标页面的相关性分数
func scoreTarget(title, url string) int {
	title = strings.ToLower(title)
	url = strings.ToLower(url)

	score := 0
	for _, kw := range titleKeywords {
		if strings.Contains(title, kw) {
			score += titleWeight
			break
		}
	}
	for _, kw := range urlKeywords {
		if strings.Contains(url, kw) {
			score += urlWeight
			break
		}
	}
	return score
}

// InspectorURL 由调试器地址推导 devtools inspector 页面地址，仅用于诊断
func InspectorURL(port int, debuggerURL string) string {
	ws := strings.TrimPrefix(debuggerURL, "ws://")
	return fmt.Sprintf("http://127.0.0.1:%d/devtools/inspector.html?ws=%s", port, ws)
}
