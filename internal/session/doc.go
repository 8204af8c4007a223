/*
Package session 实现节点侧的连接会话和 TCP 服务端。

每个被接受的连接对应一个 Session：

  - 命令循环阻塞在帧接收上，执行 COMMAND 并回复 SUCCESS/ERROR
  - 两个周期发送者分别按节点上报周期和固定 10s 发送空 DATA 作为心跳
  - 作为节点的监听者，传感器变化时推送增量，执行器变化时推送全量执行器状态

推送经由有界的发件箱交给写协程，设备变更所在的 goroutine 永远不会被网络阻塞；
发件箱满时推送被丢弃并记录日志。
*/
package session
