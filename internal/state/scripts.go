package state

import (
	"fmt"
	"strings"
)

// 所有发往远端的脚本与转义逻辑集中在本文件，
// 其余代码不允许自行拼接表达式字符串。

// CheckExpression 探测注入是否可用：游戏引擎对象必须存在
const CheckExpression = "typeof TYRANO"

// ExpectedEngineType CheckExpression 的期望结果
const ExpectedEngineType = "object"

// injectedTitleMark 注入成功后追加到窗口标题的标识
const injectedTitleMark = " - DCSM Injected"

// MarkTitleExpression 给游戏窗口标题打注入标识（幂等）
var MarkTitleExpression = fmt.Sprintf(
	`if (typeof document !== "undefined" && document.title && `+
		`!document.title.includes("%s")) { document.title = document.title + "%s"; }`,
	injectedTitleMark, injectedTitleMark)

// MarkLabelReadScript 将当前 label 标记为已读，驱动游戏的已读快进。
// 返回 {success, message} 对象，message 为机器可读原因。
const MarkLabelReadScript = `(function() {
    if (typeof TYRANO === 'undefined' || !TYRANO.kag) {
        return { success: false, message: 'tyrano_not_ready' };
    }

    try {
        if (TYRANO.kag.config.autoRecordLabel != 'true') {
            return { success: false, message: 'game_not_using_read_record' };
        }

        const currentLabel = TYRANO.kag.stat.buff_label_name;
        if (!currentLabel || currentLabel === '') {
            return { success: false, message: 'not_in_any_label' };
        }

        if (!TYRANO.kag.tmp.record) {
            if (TYRANO.kag.variable.sf.record) {
                TYRANO.kag.tmp.record = new Map(TYRANO.kag.variable.sf.record);
            } else {
                TYRANO.kag.tmp.record = new Map();
            }
        }

        TYRANO.kag.tmp.record.set(currentLabel, (TYRANO.kag.tmp.record.get(currentLabel) || 0) + 1);
        TYRANO.kag.variable.sf.record = Array.from(TYRANO.kag.tmp.record);
        TYRANO.kag.saveSystemVariable();
        TYRANO.kag.stat.already_read = true;
        $('.skip_button.event-setting-element').removeClass('unread');

        return { success: true, message: 'marked_as_read', label: currentLabel };
    } catch (e) {
        return { success: false, message: 'error: ' + e.message };
    }
})()`

// BuildRead 生成序列化远端对象的读取表达式
func BuildRead(object string) string {
	return fmt.Sprintf("JSON.stringify(%s)", object)
}

// BuildInject 生成合并写入表达式。
// persistHook 非空时在赋值后调用远端的持久化钩子；
// 成功返回字面量 true，远端内部错误以字符串形式返回。
func BuildInject(object, escapedJSON, persistHook string) string {
	hookLine := ""
	if persistHook != "" {
		hookLine = "\n        " + persistHook + ";"
	}
	return fmt.Sprintf(`(function() {
    try {
        const data = JSON.parse('%s');
        Object.assign(%s, data);%s
        return true;
    } catch (e) {
        return e.toString();
    }
})()`, escapedJSON, object, hookLine)
}

// escapePairs 顺序敏感：反斜杠必须最先处理
var escapePairs = []string{
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
}

var scriptEscaper = strings.NewReplacer(escapePairs...)

// EscapeForScript 转义 JSON 文本以便嵌入单引号脚本字面量
func EscapeForScript(jsonText string) string {
	return scriptEscaper.Replace(jsonText)
}
