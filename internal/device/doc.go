/*
Package device 定义节点上的设备能力面：传感器和执行器。

每个设备只有一个所属观察者（其所在的节点），每次状态变化都会同步通知它。
单个设备的 读取-修改-钳位-写入-通知 序列由设备自身的互斥锁串行化，
读取当前值则是无锁的原子操作。

设备通过工厂按类型创建：

	func init() {
		Register("temperature", newTemperature)
	}

	d, err := device.New(ctx, pkg.DeviceConfig{Type: "temperature", ID: "t1"})
*/
package device
