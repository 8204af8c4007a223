/*
Package transport 提供节点与面板之间的帧传输层。

每一帧由 4 字节大端长度前缀和随后的负载组成：

	[u32 BE length][payload ...]

FrameConn 的发送路径和接收路径分别由独立的互斥锁保护，因此一个协程可以在
另一个协程阻塞读取的同时写入同一连接。文本层 SendText / RecvText 以 UTF-8
编码字符串作为帧负载。

使用示例：

	fc := transport.New(conn, transport.WithMaxFrameSize(64*1024))
	defer fc.Close()
	_ = fc.SendText("HELLO|sensor-01")
	text, err := fc.RecvText()
	if transport.IsDisconnect(err) {
		// 对端断开
	}
*/
package transport
