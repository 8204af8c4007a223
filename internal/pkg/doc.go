/*
Package pkg 包含了项目的公共类部分。具体地：

config.go -- 统一定义了所有配置的加载项（viper），便于 node / panel / cli 共用

logger.go -- 配置 zap logger（控制台 + lumberjack 日志切割）

context.go -- 将配置、logger、错误通道挂载到 context 上

metrics.go -- 基于 prometheus 的协议层指标

以下项因为在多个模块共用，故放置在此包中

sample.go -- 面板侧历史采样点定义，在 panel 和 sink 之间传递
*/
package pkg
