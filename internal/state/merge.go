package state

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DeepMerge 将补丁深度合并进当前 JSON 对象。
// 双方都是对象的键递归合并；其余情况（数组、标量、类型不一致）
// 补丁值整体覆盖，数组从不逐元素合并。
func DeepMerge(current, patch []byte) ([]byte, error) {
	merged := current
	var mergeErr error
	gjson.ParseBytes(patch).ForEach(func(key, value gjson.Result) bool {
		path := escapeKey(key.String())
		cur := gjson.GetBytes(merged, path)
		raw := []byte(value.Raw)
		if cur.IsObject() && value.IsObject() {
			sub, err := DeepMerge([]byte(cur.Raw), raw)
			if err != nil {
				mergeErr = err
				return false
			}
			raw = sub
		}
		var err error
		merged, err = sjson.SetRawBytes(merged, path, raw)
		if err != nil {
			mergeErr = err
			return false
		}
		return true
	})
	return merged, mergeErr
}

// escapeKey 转义键中的路径元字符，存档键名可能包含点号
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
