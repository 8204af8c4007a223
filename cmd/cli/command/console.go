package command

import (
	"fmt"
	"io"
	"time"

	"nodelink/internal/protocol"
)

// Sender 是 REPL 用到的 panel.RemoteClient 方法
type Sender interface {
	SendCommand(target string, on bool) error
	RequestDataRefresh(target string) error
}

// Console 实现 panel.MessageHandler，把节点发来的消息缓存起来，由命令按需打印
type Console struct {
	Out    io.Writer
	Wait   time.Duration
	sender Sender
	inbox  chan protocol.Message
}

func NewConsole(out io.Writer, wait time.Duration) *Console {
	return &Console{Out: out, Wait: wait, inbox: make(chan protocol.Message, 256)}
}

// Bind 绑定发送端
func (c *Console) Bind(s Sender) { c.sender = s }

// Dispatch 非阻塞缓存消息，满了直接丢弃
func (c *Console) Dispatch(msg protocol.Message) {
	select {
	case c.inbox <- msg:
	default:
	}
}

func (c *Console) Forget(nodeID string) {
	fmt.Fprintf(c.Out, "connection to %s closed\n", nodeID)
}

// drain 丢弃命令执行前积压的消息
func (c *Console) drain() {
	for {
		select {
		case <-c.inbox:
		default:
			return
		}
	}
}

// collect 打印 d 时间内收到的消息，until 返回 true 时提前结束
func (c *Console) collect(d time.Duration, until func(protocol.Message) bool) int {
	timer := time.NewTimer(d)
	defer timer.Stop()
	n := 0
	for {
		select {
		case msg := <-c.inbox:
			fmt.Fprintln(c.Out, protocol.Encode(msg))
			n++
			if until != nil && until(msg) {
				return n
			}
		case <-timer.C:
			return n
		}
	}
}

func isReply(msg protocol.Message) bool {
	switch msg.Type() {
	case protocol.Success, protocol.Failure, protocol.Error:
		return true
	}
	return false
}
