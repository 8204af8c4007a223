// Package protocol 定义帧内承载的文本子协议：TYPE|nodeId[|payload]
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// MessageType 是固定的消息类型集合
type MessageType string

const (
	Hello     MessageType = "HELLO"
	Welcome   MessageType = "WELCOME"
	Data      MessageType = "DATA"
	Command   MessageType = "COMMAND"
	Success   MessageType = "SUCCESS"
	Failure   MessageType = "FAILURE"
	KeepAlive MessageType = "KEEPALIVE"
	Error     MessageType = "ERROR"
)

// Delimiter 消息字段分隔符，只有前两个分隔符具有结构意义
const Delimiter = "|"

var (
	ErrMalformed   = errors.New("消息格式错误")
	ErrUnknownType = errors.New("未知的消息类型")
	ErrBlankNodeID = errors.New("nodeId 不能为空")
)

var knownTypes = map[MessageType]struct{}{
	Hello: {}, Welcome: {}, Data: {}, Command: {},
	Success: {}, Failure: {}, KeepAlive: {}, Error: {},
}

// Valid 判断类型是否属于固定集合
func (t MessageType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

func (t MessageType) String() string {
	return string(t)
}

// Message 是不可变的协议消息，只能通过 NewMessage 或 Decode 构造
type Message struct {
	msgType MessageType
	nodeID  string
	payload string
}

// NewMessage 创建消息，类型未知或 nodeId 为空时失败
func NewMessage(msgType MessageType, nodeID, payload string) (Message, error) {
	if !msgType.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, string(msgType))
	}
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return Message{}, ErrBlankNodeID
	}
	if strings.Contains(nodeID, Delimiter) {
		return Message{}, fmt.Errorf("%w: nodeId 不能包含分隔符 %q", ErrMalformed, nodeID)
	}
	return Message{msgType: msgType, nodeID: nodeID, payload: payload}, nil
}

func (m Message) Type() MessageType { return m.msgType }
func (m Message) NodeID() string    { return m.nodeID }
func (m Message) Payload() string   { return m.payload }

// String 返回编码后的文本
func (m Message) String() string {
	return Encode(m)
}

// Encode 编码为 TYPE|nodeId 或 TYPE|nodeId|payload
func Encode(m Message) string {
	if m.payload == "" {
		return string(m.msgType) + Delimiter + m.nodeID
	}
	return string(m.msgType) + Delimiter + m.nodeID + Delimiter + m.payload
}

// Decode 解析文本消息。负载可以包含分隔符，原样保留。
func Decode(text string) (Message, error) {
	parts := strings.SplitN(strings.TrimSpace(text), Delimiter, 3)
	if len(parts) < 2 {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformed, text)
	}
	msgType := MessageType(parts[0])
	if !msgType.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, parts[0])
	}
	nodeID := strings.TrimSpace(parts[1])
	if nodeID == "" {
		return Message{}, ErrBlankNodeID
	}
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}
	return Message{msgType: msgType, nodeID: nodeID, payload: payload}, nil
}

// MustMessage 用于构造已知合法的消息，非法时 panic
func MustMessage(msgType MessageType, nodeID, payload string) Message {
	m, err := NewMessage(msgType, nodeID, payload)
	if err != nil {
		panic(err)
	}
	return m
}
