package state

import (
	"encoding/json"
	"fmt"
	"sort"

	"dcsm/pkg/model"
)

// Snapshot 远端状态对象的某一时刻副本。
// Raw 为远端序列化的原始文本，Data 为解析后的顶层键视图。
type Snapshot struct {
	Raw  []byte
	Data map[string]any
}

// NewSnapshot 从 JSON 文本构建快照，要求顶层是对象
func NewSnapshot(raw []byte) (Snapshot, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Raw: raw, Data: data}, nil
}

// canonical 稳定键序的规范化形式，用于快速等价比较。
// encoding/json 对 map 键按字典序输出。
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Compare 比较基线与当前快照。
// 返回是否存在漂移以及按顶层键排序的人类可读变更列表；
// 嵌套变更只报告到顶层键粒度。
func Compare(baseline, current Snapshot) (bool, []model.Change) {
	if canonical(baseline.Data) == canonical(current.Data) {
		return false, nil
	}

	keys := map[string]struct{}{}
	for k := range baseline.Data {
		keys[k] = struct{}{}
	}
	for k := range current.Data {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []model.Change
	for _, k := range sorted {
		ov, ook := baseline.Data[k]
		cv, cok := current.Data[k]
		if ook && cok && canonical(ov) == canonical(cv) {
			continue
		}
		changes = append(changes, model.Change{Key: k, Detail: describeChange(ov, cv)})
	}
	if len(changes) == 0 {
		// 规范化比较判定不等但逐键未发现差异，极少见（如类型抖动）
		changes = append(changes, model.Change{Key: "?", Detail: "unknown changes detected"})
	}
	return true, changes
}

func describeChange(old, cur any) string {
	if isObject(old) || isObject(cur) {
		return "Object changed"
	}
	if oldArr, ok := old.([]any); ok {
		if curArr, ok2 := cur.([]any); ok2 {
			return fmt.Sprintf("Array changed (length: %d -> %d)", len(oldArr), len(curArr))
		}
		return fmt.Sprintf("Array changed (length: %d -> N/A)", len(oldArr))
	}
	if curArr, ok := cur.([]any); ok {
		return fmt.Sprintf("Array changed (length: N/A -> %d)", len(curArr))
	}
	return fmt.Sprintf("%s -> %s", formatScalar(old), formatScalar(cur))
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func formatScalar(v any) string {
	if v == nil {
		return "null"
	}
	// 字符串裸显示，确认对话框里不带引号
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
