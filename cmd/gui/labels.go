package main

import "dcsm/pkg/model"

// 原因码到提示文案的映射
var reasonMessages = map[model.Reason]string{
	model.ReasonExeNotFound:      "未找到游戏程序，请检查存档目录配置",
	model.ReasonInvalidPort:      "调试端口不合法，需在 1-65535 之间",
	model.ReasonSpawnFailed:      "游戏进程启动失败",
	model.ReasonNoTarget:         "未发现游戏调试页面，游戏可能尚未就绪",
	model.ReasonTransport:        "调试器连接失败，请确认游戏仍在运行",
	model.ReasonProtocol:         "游戏内脚本执行出错",
	model.ReasonEmptyResult:      "游戏返回了空数据",
	model.ReasonWrongShape:       "游戏返回的数据格式不符合预期",
	model.ReasonParseFailed:      "游戏返回的数据无法解析",
	model.ReasonPersistFailed:    "写入成功但存档保存失败",
	model.ReasonProbeUnsupported: "当前系统不支持进程检测",
}

// messageFor 把组件错误翻译成用户可读文案，
// 未知原因时退回原始错误文本
func messageFor(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := reasonMessages[model.ReasonOf(err)]; ok {
		return msg
	}
	return err.Error()
}
