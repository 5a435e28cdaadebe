package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// debugServer 模拟页面调试端点：对每个 Runtime.evaluate 调用 respond
func debugServer(t *testing.T, respond func(conn *websocket.Conn, id int, expression string)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     int    `json:"id"`
				Method string `json:"method"`
				Params struct {
					Expression string `json:"expression"`
				} `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Method {
			case "Runtime.enable":
				_ = conn.WriteJSON(map[string]any{"id": req.ID, "result": map[string]any{}})
			case "Runtime.evaluate":
				respond(conn, req.ID, req.Params.Expression)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeValue(conn *websocket.Conn, id int, value any) {
	_ = conn.WriteJSON(map[string]any{
		"id": id,
		"result": map[string]any{
			"result": map[string]any{"type": fmt.Sprintf("%T", value), "value": value},
		},
	})
}

func TestEvaluate_ReturnsValue(t *testing.T) {
	url := debugServer(t, func(conn *websocket.Conn, id int, expr string) {
		writeValue(conn, id, "object")
	})

	c := NewClient(2*time.Second, nil)
	res := c.Evaluate(context.Background(), url, "typeof TYRANO")
	require.True(t, res.OK(), "unexpected error: %s", res.ErrorMessage)
	assert.Equal(t, "object", res.Value)
}

func TestEvaluate_DiscardsUnrelatedFrames(t *testing.T) {
	url := debugServer(t, func(conn *websocket.Conn, id int, expr string) {
		// 事件通知与陈旧应答都必须被跳过
		_ = conn.WriteJSON(map[string]any{"method": "Runtime.consoleAPICalled", "params": map[string]any{}})
		_ = conn.WriteJSON(map[string]any{"id": 999, "result": map[string]any{}})
		writeValue(conn, id, float64(42))
	})

	c := NewClient(2*time.Second, nil)
	res := c.Evaluate(context.Background(), url, "6*7")
	require.True(t, res.OK())
	assert.Equal(t, float64(42), res.Value)
}

func TestEvaluate_RemoteError(t *testing.T) {
	url := debugServer(t, func(conn *websocket.Conn, id int, expr string) {
		_ = conn.WriteJSON(map[string]any{
			"id":    id,
			"error": map[string]any{"code": -32000, "message": "Cannot find context"},
		})
	})

	c := NewClient(2*time.Second, nil)
	res := c.Evaluate(context.Background(), url, "1+1")
	require.False(t, res.OK())
	assert.Equal(t, "Cannot find context", res.ErrorMessage)
	assert.False(t, res.TransportFailure)
	assert.Nil(t, res.Value)
}

func TestEvaluate_ExceptionDetails(t *testing.T) {
	url := debugServer(t, func(conn *websocket.Conn, id int, expr string) {
		_ = conn.WriteJSON(map[string]any{
			"id": id,
			"result": map[string]any{
				"result": map[string]any{"type": "object", "subtype": "error"},
				"exceptionDetails": map[string]any{
					"text":      "Uncaught",
					"exception": map[string]any{"description": "ReferenceError: foo is not defined"},
				},
			},
		})
	})

	c := NewClient(2*time.Second, nil)
	res := c.Evaluate(context.Background(), url, "foo")
	require.False(t, res.OK())
	assert.Contains(t, res.ErrorMessage, "ReferenceError")
}

func TestEvaluate_UndefinedResult(t *testing.T) {
	url := debugServer(t, func(conn *websocket.Conn, id int, expr string) {
		_ = conn.WriteJSON(map[string]any{
			"id":     id,
			"result": map[string]any{"result": map[string]any{"type": "undefined"}},
		})
	})

	c := NewClient(2*time.Second, nil)
	res := c.Evaluate(context.Background(), url, "void 0")
	require.True(t, res.OK())
	assert.Nil(t, res.Value)
}

func TestEvaluate_UnreachableEndpoint(t *testing.T) {
	c := NewClient(time.Second, nil)
	res := c.Evaluate(context.Background(), "ws://127.0.0.1:1/devtools/page/X", "1")
	require.False(t, res.OK())
	assert.True(t, res.TransportFailure)
}

func TestEvaluate_EmptyArguments(t *testing.T) {
	c := NewClient(time.Second, nil)

	res := c.Evaluate(context.Background(), "", "1")
	assert.True(t, res.TransportFailure)

	res = c.Evaluate(context.Background(), "ws://127.0.0.1:1/x", "")
	assert.True(t, res.TransportFailure)
}

func TestEvaluate_SendsEvaluateParams(t *testing.T) {
	var got struct {
		Expression    string `json:"expression"`
		ReturnByValue bool   `json:"returnByValue"`
		AwaitPromise  bool   `json:"awaitPromise"`
	}
	url := debugServer(t, func(conn *websocket.Conn, id int, expr string) {
		got.Expression = expr
		writeValue(conn, id, true)
	})

	c := NewClient(2*time.Second, nil)
	res := c.Evaluate(context.Background(), url, "JSON.stringify(TYRANO.kag.stat)")
	require.True(t, res.OK())
	assert.Equal(t, "JSON.stringify(TYRANO.kag.stat)", got.Expression)
}

func TestEvaluate_TimesOutOnSilentServer(t *testing.T) {
	url := debugServer(t, func(conn *websocket.Conn, id int, expr string) {
		// 不应答，客户端必须在整体超时后返回传输错误
	})

	c := NewClient(300*time.Millisecond, nil)
	start := time.Now()
	res := c.Evaluate(context.Background(), url, "1")
	require.False(t, res.OK())
	assert.True(t, res.TransportFailure)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestResponseFrameParsing(t *testing.T) {
	var resp response
	raw := `{"id":2,"result":{"result":{"type":"string","value":"ok"}}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, 2, resp.ID)
	assert.Nil(t, resp.Error)
}
