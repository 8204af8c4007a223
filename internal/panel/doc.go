/*
Package panel 实现面板侧：连接远端节点的 RemoteClient、按节点缓存数据的 NodeData，
以及把收到的消息合并进缓存的 Dispatcher。Hub 为配置中的每个节点维护一个 RemoteClient。

数据流：

	RemoteClient 接收帧 -> protocol.Decode -> Dispatcher.Dispatch -> NodeData
	                                                         \-> HistorySink
*/
package panel
