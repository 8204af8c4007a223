package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// 命令负载 target:action 中的 action
const (
	ActionOn      = "1"
	ActionOff     = "0"
	ActionRefresh = "refresh"
)

// refresh 命令的目标
const (
	RefreshSensors   = "sensors"
	RefreshActuators = "actuators"
	RefreshAll       = "all"
)

// CommandSeparator target 与 action 之间的分隔符
const CommandSeparator = ":"

var ErrBadCommand = errors.New("命令格式错误")

// InvalidCommandReply 命令格式错误时回复给对端的 ERROR 负载
const InvalidCommandReply = "Invalid command format"

// CommandPayload 构造 target:action
func CommandPayload(target, action string) string {
	return target + CommandSeparator + action
}

// StatePayload 构造设置执行器状态的命令负载
func StatePayload(target string, on bool) string {
	if on {
		return CommandPayload(target, ActionOn)
	}
	return CommandPayload(target, ActionOff)
}

// ParseCommand 解析命令负载，必须恰好包含一个分隔符
func ParseCommand(payload string) (target, action string, err error) {
	parts := strings.Split(payload, CommandSeparator)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q", ErrBadCommand, payload)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// NormalizeRefreshTarget 返回规范化的刷新目标，空字符串等价于 all
func NormalizeRefreshTarget(target string) (string, bool) {
	switch t := strings.ToLower(strings.TrimSpace(target)); t {
	case "", RefreshAll:
		return RefreshAll, true
	case RefreshSensors, RefreshActuators:
		return t, true
	default:
		return t, false
	}
}
