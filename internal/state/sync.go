package state

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"dcsm/internal/logger"
	"dcsm/pkg/model"
)

// Evaluator 远程表达式求值能力，由协议会话实现，测试中可替换
type Evaluator interface {
	Evaluate(ctx context.Context, debuggerURL, expression string) model.EvalResult
}

// Synchronizer 远端 JSON 状态的读取、冲突检测与合并写回。
// 合并写入永远针对写入时刻的远端状态，而不是编辑开始时的基线。
type Synchronizer struct {
	eval Evaluator
	log  logger.Logger
}

// NewSynchronizer 创建状态同步器
func NewSynchronizer(eval Evaluator, log logger.Logger) *Synchronizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Synchronizer{eval: eval, log: log}
}

// ReadObject 读取并解析命名的远端对象。
// 失败按形状细分：空结果、非字符串/非对象、解析失败，便于 UI 精确解释。
func (s *Synchronizer) ReadObject(ctx context.Context, debuggerURL, object string) (Snapshot, error) {
	res := s.eval.Evaluate(ctx, debuggerURL, BuildRead(object))
	if !res.OK() {
		return Snapshot{}, evalError(res)
	}
	if res.Value == nil {
		return Snapshot{}, model.NewError(model.ReasonEmptyResult,
			fmt.Sprintf("%s serialized to nothing", object))
	}
	text, ok := res.Value.(string)
	if !ok {
		return Snapshot{}, model.NewError(model.ReasonWrongShape,
			fmt.Sprintf("expected JSON string for %s, got %T", object, res.Value))
	}
	if !gjson.Valid(text) {
		return Snapshot{}, model.NewError(model.ReasonParseFailed,
			fmt.Sprintf("invalid JSON for %s", object))
	}
	if !gjson.Parse(text).IsObject() {
		return Snapshot{}, model.NewError(model.ReasonWrongShape,
			fmt.Sprintf("%s is not a JSON object", object))
	}
	snap, err := NewSnapshot([]byte(text))
	if err != nil {
		return Snapshot{}, model.WrapError(model.ReasonParseFailed,
			fmt.Sprintf("parse %s failed", object), err)
	}
	return snap, nil
}

// CheckConflict 写入前的漂移检测：重读远端对象并与基线的规范化形式比较。
// 有漂移时返回逐键变更列表，由调用方要求用户确认，不视为失败。
func (s *Synchronizer) CheckConflict(ctx context.Context, debuggerURL, object string, baseline Snapshot) (bool, []model.Change, error) {
	current, err := s.ReadObject(ctx, debuggerURL, object)
	if err != nil {
		return false, nil, err
	}
	changed, changes := Compare(baseline, current)
	return changed, changes, nil
}

// WriteMerged 重读当前远端状态，深度合并补丁后写回并触发持久化钩子。
// 只有远端返回字面量 true 才算成功；成功后立即重读，作为下一轮编辑的新基线。
func (s *Synchronizer) WriteMerged(ctx context.Context, debuggerURL, object string, patch []byte, persistHook string) (Snapshot, error) {
	if err := validatePatch(patch); err != nil {
		return Snapshot{}, err
	}

	current, err := s.ReadObject(ctx, debuggerURL, object)
	if err != nil {
		return Snapshot{}, model.WrapError(model.ReasonPersistFailed,
			"failed to read current state before injection", err)
	}

	merged, err := DeepMerge(current.Raw, patch)
	if err != nil {
		return Snapshot{}, model.WrapError(model.ReasonPersistFailed, "merge failed", err)
	}

	expr := BuildInject(object, EscapeForScript(string(merged)), persistHook)
	if err := s.runInject(ctx, debuggerURL, object, expr); err != nil {
		return Snapshot{}, err
	}

	s.log.Info("合并写入成功", "object", object)

	// 刷新基线，失败不影响写入结果
	refreshed, err := s.ReadObject(ctx, debuggerURL, object)
	if err != nil {
		s.log.Warn("写入后刷新基线失败", "object", object, "error", err)
		return Snapshot{}, nil
	}
	return refreshed, nil
}

// WriteOverwrite 直接覆盖式写入，不调用持久化钩子。
// 用于瞬态状态对象，合并契约与 WriteMerged 相同。
func (s *Synchronizer) WriteOverwrite(ctx context.Context, debuggerURL, object string, patch []byte) error {
	if err := validatePatch(patch); err != nil {
		return err
	}

	current, err := s.ReadObject(ctx, debuggerURL, object)
	if err != nil {
		return model.WrapError(model.ReasonPersistFailed,
			"failed to read current state before injection", err)
	}
	merged, err := DeepMerge(current.Raw, patch)
	if err != nil {
		return model.WrapError(model.ReasonPersistFailed, "merge failed", err)
	}

	expr := BuildInject(object, EscapeForScript(string(merged)), "")
	return s.runInject(ctx, debuggerURL, object, expr)
}

// runInject 执行写入表达式并解释其三态结果：
// true 成功；字符串是远端内部错误；其余一律视为写入失败。
func (s *Synchronizer) runInject(ctx context.Context, debuggerURL, object, expr string) error {
	res := s.eval.Evaluate(ctx, debuggerURL, expr)
	if !res.OK() {
		return model.WrapError(model.ReasonPersistFailed, "inject evaluation failed", evalError(res))
	}
	switch v := res.Value.(type) {
	case bool:
		if v {
			return nil
		}
		return model.NewError(model.ReasonPersistFailed, "remote returned false")
	case string:
		s.log.Warn("远端写入返回内部错误", "object", object, "error", v)
		return model.NewError(model.ReasonPersistFailed, v)
	default:
		return model.NewError(model.ReasonPersistFailed,
			fmt.Sprintf("unexpected inject result: %v", res.Value))
	}
}

func validatePatch(patch []byte) error {
	if len(patch) == 0 {
		return model.NewError(model.ReasonPersistFailed, "cannot inject empty data")
	}
	if !gjson.ValidBytes(patch) || !gjson.ParseBytes(patch).IsObject() {
		return model.NewError(model.ReasonWrongShape, "patch must be a JSON object")
	}
	if len(gjson.ParseBytes(patch).Map()) == 0 {
		return model.NewError(model.ReasonPersistFailed, "cannot inject empty data")
	}
	return nil
}

// evalError 将求值失败映射为传输或协议错误
func evalError(res model.EvalResult) error {
	if res.TransportFailure {
		return model.NewError(model.ReasonTransport, res.ErrorMessage)
	}
	return model.NewError(model.ReasonProtocol, res.ErrorMessage)
}
