/*
Package sink 是面板侧历史数据的输出环节。

面板把每一条合并进缓存的传感器读数交给 Recorder，Recorder 按配置
非阻塞地扇出到所有启用的 sink：

- influxdb

- mqtt

- kafka

- prometheus

每个 sink 可以配置一个 expr 过滤表达式，例如 `Sample.Type == "temperature"`。

扩展新的 sink：

	func init() {
		Register("MySink", NewMySink)
	}

	// 实现 Template 接口
	func (b *MySink) GetType() string { return "MySink" }
	func (b *MySink) Start(ch chan pkg.Sample) {}
	func (b *MySink) Stop() {}
*/
package sink
