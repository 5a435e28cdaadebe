package model

import (
	"errors"
	"fmt"
)

// Reason 机器可读的失败原因码，GUI 层据此映射为翻译后的提示文案
type Reason string

const (
	// 启动类
	ReasonExeNotFound Reason = "exe_not_found"
	ReasonInvalidPort Reason = "invalid_port"
	ReasonSpawnFailed Reason = "spawn_failed"

	// 发现类
	ReasonNoTarget Reason = "no_target"

	// 传输与协议类
	ReasonTransport Reason = "transport_failed"
	ReasonProtocol  Reason = "protocol_error"

	// 远端数据形状类
	ReasonEmptyResult Reason = "empty_result"
	ReasonWrongShape  Reason = "wrong_shape"
	ReasonParseFailed Reason = "parse_failed"

	// 写入类
	ReasonPersistFailed Reason = "persist_failed"

	// 进程探测
	ReasonProbeUnsupported Reason = "probe_unsupported"
)

// Error 带原因码的组件边界错误。
// 所有网络/进程层的原始错误在越过组件边界前都会被包装成该类型。
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

// NewError 创建不含底层错误的 Error
func NewError(reason Reason, message string) *Error {
	return &Error{Reason: reason, Message: message}
}

// WrapError 包装底层错误
func WrapError(reason Reason, message string, err error) *Error {
	return &Error{Reason: reason, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf 提取错误的原因码，非 Error 类型返回空串
func ReasonOf(err error) Reason {
	var me *Error
	if errors.As(err, &me) {
		return me.Reason
	}
	return ""
}
