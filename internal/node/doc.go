// Package node 实现节点侧的设备聚合：传感器/执行器注册表、更新跟踪和监听者扇出。
//
// SensorNode 是其所有设备唯一的观察者。设备状态变化时，节点在设备变更所在的
// goroutine 上同步记录时间戳、标记待推送的传感器增量，然后依次通知每个监听者。
package node
