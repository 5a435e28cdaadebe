package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"dcsm/internal/logger"
	"dcsm/pkg/model"
)

const (
	// 远端状态对象可能很大，读取上限放宽到 10MB
	maxMessageSize = 10 << 20

	handshakeTimeout   = 5 * time.Second
	closeWriteTimeout  = 3 * time.Second
	defaultEvalTimeout = 15 * time.Second
)

// request 出站协议帧
type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// response 入站协议帧。Error 非空表示远端求值错误。
type response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type evaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue"`
	AwaitPromise  bool   `json:"awaitPromise"`
}

// Client 单次求值会话的创建者。
// 每次 Evaluate 打开一条专用连接，用完即关，从不跨空闲期持有连接。
type Client struct {
	evalTimeout time.Duration
	log         logger.Logger
}

// NewClient 创建协议客户端
func NewClient(evalTimeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if evalTimeout <= 0 {
		evalTimeout = defaultEvalTimeout
	}
	return &Client{evalTimeout: evalTimeout, log: log}
}

// Evaluate 在远端执行一条 JS 表达式并返回结果。
// 这是系统与远端进程对话的唯一通道；任何传输层故障都映射为
// EvalResult.ErrorMessage，不向调用方抛出原始异常。
func (c *Client) Evaluate(ctx context.Context, debuggerURL, expression string) model.EvalResult {
	if debuggerURL == "" {
		return transportErr("debugger url is empty")
	}
	if expression == "" {
		return transportErr("expression is empty")
	}

	deadline := time.Now().Add(c.evalTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, debuggerURL, nil)
	if err != nil {
		c.log.Debug("调试连接建立失败", "url", debuggerURL, "error", err)
		return transportErr(fmt.Sprintf("websocket connect failed: %v", err))
	}
	defer c.close(conn)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	// 会话内请求 ID 单调递增，响应严格按 ID 匹配
	id := 0
	send := func(method string, params any) (int, error) {
		id++
		return id, conn.WriteJSON(request{ID: id, Method: method, Params: params})
	}

	if _, err := send("Runtime.enable", nil); err != nil {
		return transportErr(fmt.Sprintf("send Runtime.enable failed: %v", err))
	}
	evalID, err := send("Runtime.evaluate", evaluateParams{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
	})
	if err != nil {
		return transportErr(fmt.Sprintf("send Runtime.evaluate failed: %v", err))
	}

	// 循环读取，丢弃一切不携带目标 ID 的消息（事件通知、enable 的应答等）
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return transportErr(fmt.Sprintf("websocket receive failed: %v", err))
		}
		var resp response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return transportErr(fmt.Sprintf("malformed protocol frame: %v", err))
		}
		if resp.ID != evalID {
			continue
		}
		if resp.Error != nil {
			return model.EvalResult{ErrorMessage: resp.Error.Message}
		}
		// 表达式抛出异常时结果携带 exceptionDetails 而不是协议级 error
		if exc := gjson.GetBytes(resp.Result, "exceptionDetails"); exc.Exists() {
			msg := exc.Get("exception.description").String()
			if msg == "" {
				msg = exc.Get("text").String()
			}
			return model.EvalResult{ErrorMessage: msg}
		}
		// 表达式求值为 undefined 时 value 缺失，返回 nil
		value := gjson.GetBytes(resp.Result, "result.value")
		if !value.Exists() {
			return model.EvalResult{}
		}
		return model.EvalResult{Value: value.Value()}
	}
}

// close 无条件关闭连接，尽力发送 close 帧
func (c *Client) close(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout))
	_ = conn.Close()
}

func transportErr(msg string) model.EvalResult {
	return model.EvalResult{ErrorMessage: msg, TransportFailure: true}
}
